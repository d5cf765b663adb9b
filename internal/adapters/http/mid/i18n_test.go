package mid

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/invopop/ctxi18n"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	config.InitI18n()
	os.Exit(m.Run())
}

func localeOf(t *testing.T, req *http.Request) (string, *httptest.ResponseRecorder) {
	t.Helper()
	var code string
	h := I18n(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code = ctxi18n.Locale(r.Context()).Code().String()
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return code, rec
}

func TestI18n_Precedence(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?lang=en", nil)
	req.Header.Set("Accept-Language", "pt-BR")
	req.AddCookie(&http.Cookie{Name: langCookie, Value: "pt-BR"})
	code, _ := localeOf(t, req)
	require.Equal(t, "pt-BR", code)

	req = httptest.NewRequest(http.MethodGet, "/?lang=pt-BR", nil)
	req.Header.Set("Accept-Language", "en")
	code, rec := localeOf(t, req)
	require.Equal(t, "pt-BR", code)
	require.Contains(t, rec.Header().Get("Set-Cookie"), "lang=pt-BR")
}

func TestI18n_AcceptLanguageFirstTag(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")
	code, rec := localeOf(t, req)
	require.Equal(t, "pt-BR", code)
	require.Empty(t, rec.Header().Get("Set-Cookie"))
}

func TestI18n_UnknownFallsBackToDefault(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "xx")
	code, _ := localeOf(t, req)
	require.Equal(t, "en", code)
}
