package store

import (
	"context"
	"encoding/xml"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// List is a sequence of E with the XML form
//
//	<ArrayOfCreature>
//	  <Creature>...</Creature>
//	</ArrayOfCreature>
//
// Children are named after E's XMLName tag, or its type name.
type List[E any] []E

func (List[E]) xmlItem() (string, reflect.Type) {
	t := reflect.TypeFor[E]()
	return itemName(t), t
}

// MarshalXML implements xml.Marshaler.
func (l List[E]) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	item, _ := l.xmlItem()
	// Generic type names are not valid element names; only a root list
	// gets the ArrayOf name, a list field keeps its own.
	if !isXMLName(start.Name.Local) {
		start.Name = xml.Name{Local: "ArrayOf" + upperFirst(item)}
	}

	if err := e.EncodeToken(start); err != nil {
		return err
	}
	child := xml.StartElement{Name: xml.Name{Local: item}}
	for _, v := range l {
		if err := e.EncodeElement(v, child); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// UnmarshalXML implements xml.Unmarshaler. Children with another name are
// skipped.
func (l *List[E]) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	item, _ := List[E](nil).xmlItem()

	var items List[E]
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			if tok.Name.Local != item {
				if err := d.Skip(); err != nil {
					return err
				}
				continue
			}
			var v E
			if err := d.DecodeElement(&v, &tok); err != nil {
				return err
			}
			items = append(items, v)
		case xml.EndElement:
			*l = items
			return nil
		}
	}
}

func itemName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		if f, ok := t.FieldByName("XMLName"); ok && f.Type == reflect.TypeFor[xml.Name]() {
			name, _, _ := strings.Cut(f.Tag.Get("xml"), ",")
			if i := strings.LastIndex(name, " "); i >= 0 {
				name = name[i+1:]
			}
			if name != "" {
				return name
			}
		}
	}
	if isXMLName(t.Name()) {
		return t.Name()
	}
	return "Item"
}

func isXMLName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return true
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[n:]
}

// ListLoader loads and saves documents holding a sequence of E.
type ListLoader[E any] struct {
	loader *Loader[List[E]]
}

// NewListLoader creates a ListLoader. A nil roots uses DefaultRoots.
func NewListLoader[E any](roots *Roots, opts ...Option) *ListLoader[E] {
	return &ListLoader[E]{loader: NewLoader[List[E]](roots, opts...)}
}

// LoadRequired loads a bundled list from the install root.
func (l *ListLoader[E]) LoadRequired(ctx context.Context, filename string) ([]E, error) {
	return l.loader.LoadRequired(ctx, filename)
}

// LoadOptional loads a list from the user-data root, returning nil when
// the document is missing or unreadable.
func (l *ListLoader[E]) LoadOptional(ctx context.Context, filename string) []E {
	return l.loader.LoadOptional(ctx, filename)
}

// Load loads a list with the failure policy of root.
func (l *ListLoader[E]) Load(ctx context.Context, filename string, root Root) ([]E, error) {
	return l.loader.Load(ctx, filename, root)
}

// Save writes items to filename under root.
func (l *ListLoader[E]) Save(ctx context.Context, items []E, filename string, root Root) error {
	return l.loader.Save(ctx, List[E](items), filename, root)
}

// Delete removes filename under root.
func (l *ListLoader[E]) Delete(filename string, root Root) error {
	return l.loader.Delete(filename, root)
}

// Watch calls onChange with the reloaded list whenever the document
// changes. See Loader.Watch.
func (l *ListLoader[E]) Watch(ctx context.Context, filename string, root Root, onChange func([]E)) (*Watcher, error) {
	if onChange == nil {
		return nil, errNilOnChange
	}
	return l.loader.Watch(ctx, filename, root, func(items List[E]) {
		onChange(items)
	})
}
