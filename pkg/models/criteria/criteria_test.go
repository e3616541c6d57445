package criteria_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmuktapp/Titan-EmailAttachmentDownloader/pkg/models/criteria"
)

var loadDate = time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC)

func TestNewRejectsInvalidPatterns(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		sender   string
		filename string
	}{
		{name: "bad subject", subject: "(", sender: ".*", filename: ".*"},
		{name: "bad sender", subject: ".*", sender: "[z-a]", filename: ".*"},
		{name: "bad filename", subject: ".*", sender: ".*", filename: "*report"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := criteria.New(tt.subject, tt.sender, tt.filename, loadDate)
			assert.Error(t, err)
		})
	}
}

func TestMatchesMessageIsAnchoredAtStart(t *testing.T) {
	mc, err := criteria.New(`Daily Report`, `reports@corp\.example`, ".*", loadDate)
	require.NoError(t, err)

	tests := []struct {
		name    string
		subject string
		sender  string
		want    bool
	}{
		{
			name:    "exact prefix",
			subject: "Daily Report",
			sender:  "reports@corp.example",
			want:    true,
		},
		{
			name:    "trailing content is allowed",
			subject: "Daily Report 2024-05-01",
			sender:  "reports@corp.example (Automated Reports)",
			want:    true,
		},
		{
			name:    "subject match not at start",
			subject: "FW: Daily Report",
			sender:  "reports@corp.example",
			want:    false,
		},
		{
			name:    "sender match not at start",
			subject: "Daily Report",
			sender:  "Reports <reports@corp.example>",
			want:    false,
		},
		{
			name:    "subject mismatch",
			subject: "Weekly Report",
			sender:  "reports@corp.example",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mc.MatchesMessage(tt.subject, tt.sender))
		})
	}
}

func TestMatchesMessageDoesNotRequireFullConsumption(t *testing.T) {
	// No trailing wildcard, yet headers longer than the pattern qualify.
	mc, err := criteria.New("Inventory", "warehouse@", ".*", loadDate)
	require.NoError(t, err)

	assert.True(t, mc.MatchesMessage("Inventory snapshot for stores", "warehouse@corp.example"))
}

func TestMatchesFilenameUsesExpandedTemplate(t *testing.T) {
	mc, err := criteria.New(".*", ".*", `sales_YYYY-MM-DD\.csv`, loadDate)
	require.NoError(t, err)

	assert.True(t, mc.MatchesFilename("sales_2024-05-02.csv"))
	assert.True(t, mc.MatchesFilename("sales_2024-05-02.csv.gz"))
	assert.False(t, mc.MatchesFilename("sales_2024-05-03.csv"))
	assert.False(t, mc.MatchesFilename("old_sales_2024-05-02.csv"))
}

func TestExpandDateTokens(t *testing.T) {
	date := time.Date(2024, time.January, 7, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		pattern string
		want    string
	}{
		{name: "all tokens", pattern: "data_YYYY-MM-DD.csv", want: "data_2024-01-07.csv"},
		{name: "repeated tokens", pattern: "YYYY/MM/DD/YYYY", want: "2024/01/07/2024"},
		{name: "no tokens", pattern: "static.txt", want: "static.txt"},
		{name: "lowercase untouched", pattern: "yyyy-mm-dd", want: "yyyy-mm-dd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, criteria.ExpandDateTokens(tt.pattern, date))
		})
	}
}

func TestExpandDateTokensIsIdempotent(t *testing.T) {
	date := time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)

	once := criteria.ExpandDateTokens("report_YYYY_MM_DD.xlsx", date)
	twice := criteria.ExpandDateTokens(once, date)
	assert.Equal(t, once, twice)
}
