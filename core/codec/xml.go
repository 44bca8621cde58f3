package codec

import (
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// RegisterXML installs an opt-in codec for "xml" columns. Values are
// *xmlquery.Node documents: serialized on write, parsed on read, so
// callers can run XPath queries directly against selected columns.
// Not part of RegisterDefaults; call it before opening the database.
func RegisterXML() {
	RegisterAdapter(&xmlquery.Node{}, encodeXML)
	RegisterConverter("xml", decodeXML)
}

func encodeXML(v any) (any, error) {
	n, ok := v.(*xmlquery.Node)
	if !ok {
		return nil, fmt.Errorf("xml adapter: got %T, want *xmlquery.Node", v)
	}
	if n.Type == xmlquery.DocumentNode {
		return n.OutputXML(false), nil
	}
	return n.OutputXML(true), nil
}

func decodeXML(raw any) (any, error) {
	s, ok := rawText(raw)
	if !ok {
		return nil, fmt.Errorf("xml converter: got %T, want text", raw)
	}
	doc, err := xmlquery.Parse(strings.NewReader(s))
	if err != nil {
		return nil, fmt.Errorf("xml converter: %w", err)
	}
	return doc, nil
}
