package textutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestCleanCompanyName(t *testing.T) {
	cases := []struct {
		input  string
		expect string
	}{
		// only comma separated suffixes are legal forms
		{input: "Nintendo Co., Ltd.", expect: "Nintendo Co."},
		{input: "Nintendo, Co., Ltd.", expect: "Nintendo"},
		{input: "Square Enix, Inc.", expect: "Square Enix"},
		{input: "Valve, LLC", expect: "Valve"},
		{input: "Foo, Digital, Inc.", expect: "Foo"},
		{input: "Remedy Entertainment, Oyj", expect: "Remedy Entertainment Oyj"},
		{input: "Electronic Arts, Sample", expect: "Electronic Arts Sample"},
		{input: "Paradox Interactive, AB", expect: "Paradox Interactive"},
		{input: "  Sega,  Sammy  ", expect: "Sega Sammy"},
		{input: ", Atlus,", expect: "Atlus"},
		{input: "", expect: ""},
	}
	for _, test := range cases {
		require.Equal(t, test.expect, CleanCompanyName(test.input, nil), test.input)
	}

	custom := CompileCompanySuffixes([]string{"Games"})
	require.Equal(t, "Riot", CleanCompanyName("Riot, Games", custom))
	require.Equal(t, "Nintendo Co. Ltd.", CleanCompanyName("Nintendo, Co., Ltd.", custom))
}

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		input  string
		expect string
		ok     bool
	}{
		{input: "2010-07-16(中国大陆)", expect: "2010-07-16", ok: true},
		{input: "2010-7-6", expect: "2010-07-06", ok: true},
		{input: "2010/07/16", expect: "2010-07-16", ok: true},
		{input: "2010年7月16日", expect: "2010-07-16", ok: true},
		{input: "April 26, 2024", expect: "2024-04-26", ok: true},
		{input: "Apr 26, 2024", expect: "2024-04-26", ok: true},
		{input: "26 April 2024", expect: "2024-04-26", ok: true},
		{input: "March 2024", expect: "2024-03-01", ok: true},
		{input: "2024-03", expect: "2024-03-01", ok: true},
		{input: "1999", expect: "1999-01-01", ok: true},
		{input: " 1999 (Japan) ", expect: "1999-01-01", ok: true},
		{input: "2024-03-05T10:00:00Z", expect: "2024-03-05", ok: true},
		{input: "soon", ok: false},
		{input: "", ok: false},
	}
	for _, test := range cases {
		date, ok := NormalizeDate(test.input)
		require.Equal(t, test.ok, ok, test.input)
		require.Equal(t, test.expect, date, test.input)
	}
}

func TestEarliestDate(t *testing.T) {
	date, ok := EarliestDate([]string{
		"2010-07-16(美国)",
		"2010-09-01(中国大陆)",
		"2010-07-08(英国)",
		"unknown",
	})
	require.True(t, ok)
	require.Equal(t, "2010-07-08", date)

	_, ok = EarliestDate([]string{"tba"})
	require.False(t, ok)
}

func TestSplitList(t *testing.T) {
	diff := cmp.Diff(
		[]string{"剧情", "科幻", "悬疑"},
		SplitList(" 剧情 / 科幻 /悬疑 / "),
	)
	if diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, []string{"a", "b c"}, SplitList("a;b c", ";"))
	require.Empty(t, SplitList(" / "))
}

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "thelegendofzelda", NormalizeName("  The Legend of\tZelda\n"))
	require.True(t, MatchName("Final Fantasy VII", []string{"fantasyvii"}))
	require.False(t, MatchName("Final Fantasy VII", []string{"zelda"}))
}
