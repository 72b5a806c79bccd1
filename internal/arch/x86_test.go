package arch_test

import (
	"testing"

	"github.com/keurnel/btrace/internal/arch"
)

// testImage - a small 64-bit code image at 0x1000:
//
//	0x1000: 90                  nop
//	0x1001: e8 00 00 00 00      call  0x1006
//	0x1006: c3                  ret
//	0x1007: eb 00               jmp   0x1009
//	0x1009: 74 00               je    0x100b
func testImage() *arch.X86 {
	return arch.NewX86(0x1000, []byte{
		0x90,
		0xe8, 0x00, 0x00, 0x00, 0x00,
		0xc3,
		0xeb, 0x00,
		0x74, 0x00,
	})
}

func requireClass(t *testing.T, oracle arch.Oracle, pc uint64, expected arch.Class) {
	t.Helper()

	class, err := oracle.ClassifyInsn(pc)
	if err != nil {
		t.Fatalf("classify %#x: %v", pc, err)
	}
	if class != expected {
		t.Errorf("pc %#x: expected %v, got %v", pc, expected, class)
	}
}

func requireLength(t *testing.T, oracle arch.Oracle, pc uint64, expected int) {
	t.Helper()

	length, err := oracle.InsnLength(pc)
	if err != nil {
		t.Fatalf("length %#x: %v", pc, err)
	}
	if length != expected {
		t.Errorf("pc %#x: expected length %d, got %d", pc, expected, length)
	}
}

// ---------------------------------------------------------------------------
// Tests: classification
// ---------------------------------------------------------------------------

func TestX86_Classify(t *testing.T) {
	oracle := testImage()

	requireClass(t, oracle, 0x1000, arch.ClassOther)
	requireClass(t, oracle, 0x1001, arch.ClassCall)
	requireClass(t, oracle, 0x1006, arch.ClassReturn)
	requireClass(t, oracle, 0x1007, arch.ClassJump)

	// Conditional jumps stay ClassOther; only unconditional jumps take
	// part in tail-call detection.
	requireClass(t, oracle, 0x1009, arch.ClassOther)
}

func TestX86_Length(t *testing.T) {
	oracle := testImage()

	requireLength(t, oracle, 0x1000, 1)
	requireLength(t, oracle, 0x1001, 5)
	requireLength(t, oracle, 0x1006, 1)
	requireLength(t, oracle, 0x1007, 2)
}

func TestX86_OutsideImage(t *testing.T) {
	oracle := testImage()

	if _, err := oracle.ClassifyInsn(0x2000); err == nil {
		t.Error("expected a decode failure outside the image")
	}
	if _, err := oracle.InsnLength(0xfff); err == nil {
		t.Error("expected a decode failure below the image base")
	}
}

// ---------------------------------------------------------------------------
// Tests: tolerant service
// ---------------------------------------------------------------------------

func TestService_DemotesFailures(t *testing.T) {
	service := arch.NewService(testImage())

	// Outside the image: classification demotes to other, length to 0.
	if class := service.Classify(0x2000); class != arch.ClassOther {
		t.Errorf("expected ClassOther, got %v", class)
	}
	if length := service.Length(0x2000); length != 0 {
		t.Errorf("expected length 0, got %d", length)
	}

	// Decodable instructions pass through.
	if class := service.Classify(0x1001); class != arch.ClassCall {
		t.Errorf("expected ClassCall, got %v", class)
	}
	if length := service.Length(0x1001); length != 5 {
		t.Errorf("expected length 5, got %d", length)
	}
}

func TestScripted(t *testing.T) {
	oracle := arch.NewScripted().
		Put(0x10, arch.ClassCall, 2).
		Put(0x12, arch.ClassReturn, 1)

	requireClass(t, oracle, 0x10, arch.ClassCall)
	requireLength(t, oracle, 0x12, 1)

	if _, err := oracle.ClassifyInsn(0x99); err == nil {
		t.Error("expected an unscripted PC to fail")
	}
}
