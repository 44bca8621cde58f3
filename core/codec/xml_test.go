package codec

import (
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
)

func TestXMLCodec(t *testing.T) {
	RegisterXML()

	doc, err := xmlquery.Parse(strings.NewReader(`<book><title>Go</title><year>2009</year></book>`))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	enc, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	text, ok := enc.(string)
	if !ok {
		t.Fatalf("Encode returned %T, want string", enc)
	}
	if !strings.Contains(text, "<title>Go</title>") {
		t.Errorf("Encode = %q, want serialized document", text)
	}

	dec, err := Decode("xml", text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	node, ok := dec.(*xmlquery.Node)
	if !ok {
		t.Fatalf("Decode returned %T, want *xmlquery.Node", dec)
	}

	// Decoded documents answer XPath queries
	title := xmlquery.FindOne(node, "//title")
	if title == nil {
		t.Fatal("XPath //title found nothing in decoded document")
	}
	if got := title.InnerText(); got != "Go" {
		t.Errorf("title = %q, want %q", got, "Go")
	}

	if _, err := Decode("xml", int64(5)); err == nil {
		t.Error("Decode of non-text value should fail")
	}
}

func TestXMLElementNode(t *testing.T) {
	RegisterXML()

	doc, err := xmlquery.Parse(strings.NewReader(`<root><item id="1"/></root>`))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	// Encoding a non-document node serializes the node itself
	item := xmlquery.FindOne(doc, "//item")
	if item == nil {
		t.Fatal("fixture missing //item")
	}
	enc, err := Encode(item)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(enc.(string), `<item id="1"`) {
		t.Errorf("Encode = %q, want the item element", enc)
	}
}
