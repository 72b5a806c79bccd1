package btrace

import (
	"encoding/xml"
	"strconv"
)

// The producer delivers raw trace and its configuration as two XML-shaped
// records:
//
//	<btrace version="1.0">
//	  <block begin="0x400000" end="0x400013"/>
//	  ...
//	</btrace>
//
//	<btrace-conf version="1.0">
//	  <bts size="65536"/>
//	</btrace-conf>
//
// Blocks appear in reverse chronological order. Only version 1.0 of the
// btrace record is supported.

type xmlBlock struct {
	Begin *string `xml:"begin,attr"`
	End   *string `xml:"end,attr"`
}

type xmlBtrace struct {
	XMLName xml.Name   `xml:"btrace"`
	Version *string    `xml:"version,attr"`
	Blocks  []xmlBlock `xml:"block"`
}

type xmlBts struct {
	Size *string `xml:"size,attr"`
}

type xmlBtraceConf struct {
	XMLName xml.Name `xml:"btrace-conf"`
	Version *string  `xml:"version,attr"`
	BTS     *xmlBts  `xml:"bts"`
}

// parseAddr - parses a decimal or 0x-prefixed attribute value.
func parseAddr(name, value string) (uint64, error) {
	v, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return 0, parseErrorf("bad %s attribute %q", name, value)
	}
	return v, nil
}

// ParseData decodes a btrace record into raw trace data. Unsupported
// versions and malformed blocks fail with a *ParseError; no partial result
// is returned.
func ParseData(raw []byte) (*Data, error) {
	var doc xmlBtrace
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, parseErrorf("error parsing branch trace: %v", err)
	}

	if doc.Version == nil {
		return nil, parseErrorf("missing btrace version")
	}
	if *doc.Version != "1.0" {
		return nil, parseErrorf("unsupported btrace version: %q", *doc.Version)
	}

	data := &Data{Format: FormatNone}

	for _, b := range doc.Blocks {
		if b.Begin == nil || b.End == nil {
			return nil, parseErrorf("block without begin/end attribute")
		}

		begin, err := parseAddr("begin", *b.Begin)
		if err != nil {
			return nil, err
		}
		end, err := parseAddr("end", *b.End)
		if err != nil {
			return nil, err
		}

		data.Format = FormatBTS
		data.Blocks = append(data.Blocks, Block{Begin: begin, End: end})
	}

	return data, nil
}

// ParseConf decodes a btrace-conf record. A missing bts child means the
// producer records nothing (FormatNone); a bts child without a size leaves
// the buffer size to the producer.
func ParseConf(raw []byte) (*Config, error) {
	var doc xmlBtraceConf
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, parseErrorf("error parsing branch trace configuration: %v", err)
	}

	if doc.Version == nil {
		return nil, parseErrorf("missing btrace-conf version")
	}

	conf := &Config{Format: FormatNone}

	if doc.BTS != nil {
		conf.Format = FormatBTS

		if doc.BTS.Size != nil {
			size, err := parseAddr("size", *doc.BTS.Size)
			if err != nil {
				return nil, err
			}
			conf.BTS.Size = size
		}
	}

	return conf, nil
}
