package corpus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/domain"
)

const sample = "\ufeffpmid,title,authors,date,full_text_link,abstract,full_text,journal\n" +
	"101,Flap outcomes,\"Doe, J\",2021,http://a,\"Free flap, survival\",,PRS\n" +
	"102,Fat grafting,Roe,2022,,,full body text,\n"

func TestRead(t *testing.T) {
	items, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, domain.Item{
		Title:      "Flap outcomes",
		Text:       "Free flap, survival",
		Identifier: "101",
		Authors:    "Doe, J",
		Date:       "2021",
		Link:       "http://a",
		Extra:      map[string]string{"journal": "PRS"},
	}, items[0])
	assert.Equal(t, "full body text", items[1].Text)
	assert.Nil(t, items[1].Extra)
}

func TestRead_MissingColumnsAndShortRows(t *testing.T) {
	items, err := Read(strings.NewReader("title,abstract\nOnly title\n"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Only title", items[0].Title)
	assert.Empty(t, items[0].Text)
	assert.Empty(t, items[0].Identifier)
}

func TestRead_Empty(t *testing.T) {
	items, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRead_Malformed(t *testing.T) {
	_, err := Read(strings.NewReader("title,abstract\n\"unterminated,x\n"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studies.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	items, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
