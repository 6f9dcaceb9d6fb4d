package store

import (
	"encoding"
	"encoding/xml"
	"io"
	"reflect"
	"strings"
	"sync"
)

const xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"

// members is the set of child elements and attributes encoding/xml maps
// onto a Go type.
type members struct {
	elems   map[string]*memberRef
	attrs   map[string]string // local name -> namespace, "" matches any
	anyElem *memberRef
	anyAttr bool
	// opaque types consume their whole subtree.
	opaque bool
}

type memberRef struct {
	space string
	typ   reflect.Type
	// next is set for the intermediate elements of an "a>b" path.
	next *members
}

func (r *memberRef) resolve() *members {
	if r.next != nil {
		return r.next
	}
	return membersOf(r.typ)
}

// itemDescriber is implemented by container types whose XML form is a
// list of same-named children.
type itemDescriber interface {
	xmlItem() (name string, typ reflect.Type)
}

var (
	unmarshalerType     = reflect.TypeFor[xml.Unmarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
	itemDescriberType   = reflect.TypeFor[itemDescriber]()

	opaqueMembers = &members{opaque: true}
	leafMembers   = newMembers()

	memberCache sync.Map // reflect.Type -> *members
)

func newMembers() *members {
	return &members{elems: make(map[string]*memberRef), attrs: make(map[string]string)}
}

func membersOf(t reflect.Type) *members {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if m, ok := memberCache.Load(t); ok {
		return m.(*members)
	}
	m, _ := memberCache.LoadOrStore(t, buildMembers(t))
	return m.(*members)
}

func buildMembers(t reflect.Type) *members {
	if t.Implements(itemDescriberType) {
		name, item := reflect.Zero(t).Interface().(itemDescriber).xmlItem()
		m := newMembers()
		m.elems[name] = &memberRef{typ: item}
		return m
	}
	if implements(t, unmarshalerType) {
		return opaqueMembers
	}
	if implements(t, textUnmarshalerType) {
		return leafMembers
	}

	switch t.Kind() {
	case reflect.Struct:
		m := newMembers()
		addFields(m, t)
		return m
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return leafMembers
		}
		return membersOf(t.Elem())
	case reflect.Interface, reflect.Map:
		return opaqueMembers
	default:
		return leafMembers
	}
}

func implements(t, iface reflect.Type) bool {
	return t.Implements(iface) || reflect.PointerTo(t).Implements(iface)
}

// addFields mirrors the field rules of encoding/xml.
func addFields(m *members, t reflect.Type) {
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("xml")
		if (!f.IsExported() && !f.Anonymous) || tag == "-" {
			continue
		}

		if f.Anonymous {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				addFields(m, ft)
				continue
			}
			if !f.IsExported() {
				continue
			}
		}
		if f.Name == "XMLName" {
			continue
		}

		name, flags, _ := strings.Cut(tag, ",")
		space := ""
		if sp := strings.LastIndex(name, " "); sp >= 0 {
			space, name = name[:sp], name[sp+1:]
		}
		opts := make(map[string]bool)
		for _, o := range strings.Split(flags, ",") {
			opts[o] = true
		}

		switch {
		case opts["attr"] && opts["any"]:
			m.anyAttr = true
		case opts["attr"]:
			if name == "" {
				name = f.Name
			}
			m.attrs[name] = space
		case opts["any"]:
			m.anyElem = &memberRef{typ: f.Type}
		case opts["innerxml"]:
			m.opaque = true
		case opts["chardata"], opts["cdata"], opts["comment"]:
		default:
			if name == "" {
				name = defaultElementName(f)
			}
			m.addPath(space, strings.Split(name, ">"), f.Type)
		}
	}
}

func defaultElementName(f reflect.StructField) string {
	t := f.Type
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		if xf, ok := t.FieldByName("XMLName"); ok {
			if name, _, _ := strings.Cut(xf.Tag.Get("xml"), ","); name != "" {
				if i := strings.LastIndex(name, " "); i >= 0 {
					name = name[i+1:]
				}
				return name
			}
		}
	}
	return f.Name
}

func (m *members) addPath(space string, parts []string, typ reflect.Type) {
	cur := m
	for _, p := range parts[:len(parts)-1] {
		if p == "" {
			continue
		}
		ref, ok := cur.elems[p]
		if !ok || ref.next == nil {
			ref = &memberRef{next: newMembers()}
			cur.elems[p] = ref
		}
		cur = ref.next
	}
	cur.elems[parts[len(parts)-1]] = &memberRef{space: space, typ: typ}
}

func (m *members) child(name xml.Name) (*members, bool) {
	if m.opaque {
		return m, true
	}
	if ref, ok := m.elems[name.Local]; ok && (ref.space == "" || ref.space == name.Space) {
		return ref.resolve(), true
	}
	if m.anyElem != nil {
		return m.anyElem.resolve(), true
	}
	return nil, false
}

func (m *members) hasAttr(name xml.Name) bool {
	if m.opaque || m.anyAttr || implicitAttr(name) {
		return true
	}
	space, ok := m.attrs[name.Local]
	return ok && (space == "" || space == name.Space)
}

// implicitAttr reports namespace declarations and schema-instance
// attributes, which never map onto fields.
func implicitAttr(name xml.Name) bool {
	return name.Space == "xmlns" || (name.Space == "" && name.Local == "xmlns") || name.Space == xsiNamespace
}

// collectUnknown walks the first element of d against the mapping of t
// and records every element and attribute that has no destination.
func collectUnknown(d *xml.Decoder, t reflect.Type, unknown *UnknownMembers) error {
	var stack []*members
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch tok := tok.(type) {
		case xml.StartElement:
			var m *members
			if len(stack) == 0 {
				m = membersOf(t)
			} else {
				var ok bool
				if m, ok = stack[len(stack)-1].child(tok.Name); !ok {
					unknown.Add(tok.Name.Local)
					if err := d.Skip(); err != nil {
						return err
					}
					continue
				}
			}
			for _, a := range tok.Attr {
				if !m.hasAttr(a.Name) {
					unknown.Add(a.Name.Local)
				}
			}
			stack = append(stack, m)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return nil
			}
		}
	}
}
