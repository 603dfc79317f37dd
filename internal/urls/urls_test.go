package urls_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"overcastmirror/internal/urls"
)

func TestParse(t *testing.T) {
	t.Parallel()

	u, err := urls.Parse("http://www.example.com")
	require.NoError(t, err)
	require.Equal(t, "http://www.example.com", u.String())

	_, err = urls.Parse("example.com")
	require.Error(t, err, "URL without a scheme must be rejected")
}

func TestParseHTTP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "http", input: "http://www.example.com"},
		{name: "https", input: "https://www.example.com"},
		{name: "no scheme", input: "example.com", wantErr: true},
		{name: "wrong scheme", input: "ftp://www.example.com", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			u, err := urls.ParseHTTP(test.input)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.input, u.String())
		})
	}
}
