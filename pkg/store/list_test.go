package store_test

import (
	"bytes"
	"context"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vzahanych/xmlstore/pkg/store"
)

func TestListLoaderCreatures(t *testing.T) {
	ctx := context.Background()
	roots := newTestRoots(t)
	loader := store.NewListLoader[Creature](roots.Roots)

	want := []Creature{
		{Name: "Goblin", CR: "1/3", HP: 6, Feats: []string{"Improved Initiative"}},
		{Name: "Orc", CR: "1/3", HP: 6},
		{Name: "Ogre", CR: "3", HP: 30, Feats: []string{"Iron Will", "Toughness"}},
	}

	require.NoError(t, loader.Save(ctx, want, "creatures.xml", store.UserDataRoot))
	assert.Equal(t, want, loader.LoadOptional(ctx, "creatures.xml"))
}

func TestListLoaderMissing(t *testing.T) {
	ctx := context.Background()
	roots := newTestRoots(t)
	loader := store.NewListLoader[Creature](roots.Roots)

	assert.Nil(t, loader.LoadOptional(ctx, "creatures.xml"))

	_, err := loader.LoadRequired(ctx, "creatures.xml")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, loader.Delete("creatures.xml", store.UserDataRoot))
}

func TestListLoaderReadsSerializerOutput(t *testing.T) {
	ctx := context.Background()
	roots := newTestRoots(t)
	writeFile(t, roots.install, "bestiary.xml", `<?xml version="1.0" encoding="utf-8"?>
<ArrayOfCreature xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema">
  <Creature CR="1/2">
    <Name>Kobold</Name>
    <HP>5</HP>
    <Feats xsi:nil="true" />
  </Creature>
  <Creature CR="1">
    <Name>Wolf</Name>
    <HP>13</HP>
  </Creature>
</ArrayOfCreature>`)

	loader := store.NewListLoader[Creature](roots.Roots)
	got, err := loader.Load(ctx, "bestiary.xml", store.InstallRoot)
	require.NoError(t, err)
	assert.Equal(t, []Creature{
		{Name: "Kobold", CR: "1/2", HP: 5},
		{Name: "Wolf", CR: "1", HP: 13},
	}, got)
}

func TestListXMLForm(t *testing.T) {
	var buf bytes.Buffer
	list := store.List[Creature]{{Name: "Goblin", CR: "1/3"}, {Name: "Orc"}}
	require.NoError(t, store.XMLCodec{}.Encode(&buf, list))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, xml.Header))
	assert.Contains(t, out, "<ArrayOfCreature>")
	assert.Equal(t, 2, strings.Count(out, "<Creature "))
	assert.Contains(t, out, "</ArrayOfCreature>")

	var back store.List[Creature]
	require.NoError(t, store.XMLCodec{}.Decode(&buf, &back, nil))
	assert.Equal(t, list, back)
}

func TestListAsField(t *testing.T) {
	type encounter struct {
		XMLName  xml.Name              `xml:"Encounter"`
		Monsters store.List[Creature] `xml:"Monsters"`
	}

	var buf bytes.Buffer
	in := encounter{Monsters: store.List[Creature]{{Name: "Goblin"}}}
	require.NoError(t, store.XMLCodec{}.Encode(&buf, in))
	assert.Contains(t, buf.String(), "<Monsters><Creature")

	var out encounter
	unknown := store.NewUnknownMembers()
	doc := `<Encounter><Monsters><Creature><Name>Goblin</Name><Loot/></Creature><Trap/></Monsters></Encounter>`
	require.NoError(t, store.XMLCodec{}.Decode(strings.NewReader(doc), &out, unknown))
	require.Len(t, out.Monsters, 1)
	assert.Equal(t, "Goblin", out.Monsters[0].Name)
	assert.Equal(t, []string{"Loot", "Trap"}, unknown.Names())
}
