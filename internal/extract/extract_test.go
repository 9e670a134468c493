package extract

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextJoinsLinesInOrder(t *testing.T) {
	assert.Equal(t, "t1\nt2\nt3", Text([]string{"t1", "t2", "t3"}))
	assert.Equal(t, "only", Text([]string{"only"}))
	assert.Equal(t, "", Text(nil))
}

func TestCSVQuotesEveryLine(t *testing.T) {
	lines := []string{`Invoice "A"`, "Total, 12.00", `""`, ""}

	got := CSV(lines)

	assert.Equal(t, "\"Invoice \"\"A\"\"\"\n\"Total, 12.00\"\n\"\"\"\"\"\"\n\"\"", got)
}

func TestCSVParsesBackToOneFieldPerLine(t *testing.T) {
	lines := []string{`He said "hi"`, "a,b,c", "plain"}

	r := csv.NewReader(strings.NewReader(CSV(lines)))
	records, err := r.ReadAll()
	require.NoError(t, err)

	require.Len(t, records, len(lines))
	for i, rec := range records {
		require.Len(t, rec, 1)
		assert.Equal(t, lines[i], rec[0])
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	lines := []string{"first", `"quoted"`, "last"}

	a := Build(lines)
	b := Build(lines)

	assert.Equal(t, a, b)
	assert.Equal(t, "first\n\"quoted\"\nlast", string(a.Text))
	assert.False(t, strings.HasSuffix(string(a.CSV), "\n"))
}
