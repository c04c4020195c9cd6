// internal/browser/manager_test.go
package browser

import (
	"context"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/uiprobe-cli/internal/config"
	"github.com/xkilldash9x/uiprobe-cli/internal/session"
)

func TestPrepareLaunchOptions(t *testing.T) {
	m := NewManager(config.BrowserConfig{
		Headless: false,
		Args:     []string{"--no-sandbox", "--lang=en-US"},
	}, zaptest.NewLogger(t))

	opts := m.prepareLaunchOptions()
	require.NotNil(t, opts.Headless)
	assert.False(t, *opts.Headless)
	assert.Equal(t, []string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage", "--lang=en-US"}, opts.Args)
}

func TestViewportDefaults(t *testing.T) {
	m := NewManager(config.BrowserConfig{}, nil)
	assert.Equal(t, &playwright.Size{Width: 1280, Height: 720}, m.viewport())

	m = NewManager(config.BrowserConfig{ViewportWidth: 800, ViewportHeight: 600}, nil)
	assert.Equal(t, &playwright.Size{Width: 800, Height: 600}, m.viewport())
}

func TestShutdownWithoutInitialization(t *testing.T) {
	m := NewManager(config.BrowserConfig{}, zaptest.NewLogger(t))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestToPlaywrightCookies(t *testing.T) {
	in := []session.Cookie{
		{Name: "sid", Value: "1", Domain: ".example.com", HTTPOnly: true, Secure: true, SameSite: "Lax", Expires: 1700000000},
		{Name: "pref", Value: "dark"},
		{Name: "", Value: "dropped"},
	}
	out := toPlaywrightCookies(in, "https://example.com/app")
	require.Len(t, out, 2)

	sid := out[0]
	assert.Equal(t, "sid", sid.Name)
	require.NotNil(t, sid.Domain)
	assert.Equal(t, ".example.com", *sid.Domain)
	require.NotNil(t, sid.Path)
	assert.Equal(t, "/", *sid.Path)
	assert.Nil(t, sid.URL)
	assert.Equal(t, playwright.SameSiteAttributeLax, sid.SameSite)
	require.NotNil(t, sid.Expires)
	assert.Equal(t, float64(1700000000), *sid.Expires)
	assert.True(t, *sid.HttpOnly)

	pref := out[1]
	require.NotNil(t, pref.URL, "cookies without a domain are bound to the target URL")
	assert.Equal(t, "https://example.com/app", *pref.URL)
	assert.Nil(t, pref.Domain)
	assert.Nil(t, pref.SameSite)

	assert.Len(t, toPlaywrightCookies([]session.Cookie{{Name: "x"}}, ""), 0)
}

func TestFromPlaywrightCookies(t *testing.T) {
	out := fromPlaywrightCookies([]playwright.Cookie{{
		Name:     "sid",
		Value:    "1",
		Domain:   "example.com",
		Path:     "/",
		Expires:  -1,
		HttpOnly: true,
		SameSite: playwright.SameSiteAttributeStrict,
	}})
	assert.Equal(t, []session.Cookie{{
		Name:     "sid",
		Value:    "1",
		Domain:   "example.com",
		Path:     "/",
		HTTPOnly: true,
		SameSite: "Strict",
	}}, out)
}

func TestOptionIndex(t *testing.T) {
	assert.Equal(t, 1, optionIndex("1"))
	assert.Equal(t, 3, optionIndex("3"))
	assert.Equal(t, 1, optionIndex(""))
	assert.Equal(t, 1, optionIndex("blue"))
	assert.Equal(t, 1, optionIndex("-2"))
}
