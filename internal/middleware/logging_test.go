package middleware

import (
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestSanitizeRequestBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		contains    []string
		excludes    []string
	}{
		{
			name:        "masks e-mail",
			contentType: fiber.MIMEApplicationJSON,
			body:        `{"email":"caller@example.com","status":"new"}`,
			contains:    []string{`"email":"[SECRET]"`, `"status":"new"`},
			excludes:    []string{"caller@example.com"},
		},
		{
			name:        "truncates transcripts",
			contentType: fiber.MIMEApplicationJSON,
			body:        `{"raw_transcript":"` + strings.Repeat("a", 100) + `"}`,
			contains:    []string{strings.Repeat("a", 64) + "..."},
			excludes:    []string{strings.Repeat("a", 65)},
		},
		{
			name:        "non json",
			contentType: fiber.MIMETextPlain,
			body:        "hello",
			contains:    []string{"[non-JSON body]"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := sanitizeRequestBody(tt.contentType, []byte(tt.body))
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("%q does not contain %q", got, want)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("%q leaks %q", got, bad)
				}
			}
		})
	}
}
