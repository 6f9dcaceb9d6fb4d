package store

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"reflect"

	"golang.org/x/net/html/charset"
)

// Codec translates between a document stream and a Go value.
type Codec interface {
	// Decode reads one document from r into v, which must be a pointer.
	// When unknown is non-nil, members of the document that v cannot hold
	// are recorded in it instead of failing the decode.
	Decode(r io.Reader, v any, unknown *UnknownMembers) error
	// Encode writes v to w as one document.
	Encode(w io.Writer, v any) error
}

// XMLCodec is the encoding/xml based Codec.
type XMLCodec struct {
	// Indent is the per-level indentation used by Encode.
	Indent string
}

var _ Codec = XMLCodec{}

// Decode implements Codec. Documents declared in a non UTF-8 charset are
// transcoded before decoding.
func (c XMLCodec) Decode(r io.Reader, v any, unknown *UnknownMembers) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	if err := newXMLDecoder(data).Decode(v); err != nil {
		return fmt.Errorf("decode xml: %w", err)
	}
	if unknown == nil {
		return nil
	}
	if err := collectUnknown(newXMLDecoder(data), reflect.TypeOf(v), unknown); err != nil {
		return fmt.Errorf("scan xml members: %w", err)
	}
	return nil
}

// Encode implements Codec.
func (c XMLCodec) Encode(w io.Writer, v any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	if c.Indent != "" {
		enc.Indent("", c.Indent)
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode xml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode xml: %w", err)
	}

	_, err := io.WriteString(w, "\n")
	return err
}

func newXMLDecoder(data []byte) *xml.Decoder {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel
	return d
}
