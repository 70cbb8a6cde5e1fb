package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	en := New("en")
	assert.Equal(t, "PDFs merged successfully", en.T("backend.messages.merge_success"))
	assert.Equal(t, "File size exceeds 50 MB limit",
		en.TWithData("backend.errors.file_too_large", map[string]string{"limit": "50 MB"}))
	assert.Equal(t, "backend.errors.nope", en.T("backend.errors.nope"))

	_, ok := en.Lookup("backend.errors", nil)
	assert.False(t, ok, "a section is not a message")
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	l := New("xx")
	assert.Equal(t, "en", l.Lang())
	assert.Equal(t, "Download has expired", l.T("backend.errors.download_expired"))
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	var walk func(prefix string, m map[string]interface{}) []string
	walk = func(prefix string, m map[string]interface{}) []string {
		var keys []string
		for k, v := range m {
			if sub, ok := v.(map[string]interface{}); ok {
				keys = append(keys, walk(prefix+k+".", sub)...)
			} else {
				keys = append(keys, prefix+k)
			}
		}
		return keys
	}
	want := walk("", catalogs[DefaultLang])
	for _, lang := range Supported() {
		assert.ElementsMatch(t, want, walk("", catalogs[lang]), "locale %s", lang)
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"de-DE,de;q=0.9,en;q=0.8", "de"},
		{"en-US", "en"},
		{"fr-FR", "en"},
		{"fr;q=0.9,de;q=0.5", "de"},
		{";;;", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.header))
		})
	}
}

func TestLanguageMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(LanguageMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, TFromContext(c.Request.Context(), "backend.errors.download_expired"))
	})

	tests := []struct {
		name, url, accept, want string
	}{
		{"default", "/", "", "Download has expired"},
		{"header", "/", "de", "Der Download ist abgelaufen"},
		{"query wins", "/?lang=en", "de", "Download has expired"},
		{"bad query ignored", "/?lang=zz", "de", "Der Download ist abgelaufen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Body.String())
		})
	}

	assert.Equal(t, "en", GetLanguageFromContext(context.Background()))
}
