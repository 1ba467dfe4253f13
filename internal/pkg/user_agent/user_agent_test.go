package user_agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footprint/internal/pkg/user_agent"
)

const (
	chromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	edgeWindows   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91"
	safariMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name      string
		userAgent string
		expected  user_agent.Classification
	}{
		{
			name:      "Chrome on Windows",
			userAgent: chromeWindows,
			expected: user_agent.Classification{
				BrowserName: "Chrome", BrowserVersion: "91.0.4472.124",
				OSName: "Windows", OSVersion: "10",
				DeviceClass: user_agent.DeviceDesktop,
			},
		},
		{
			name:      "Edge wins over embedded Chrome token",
			userAgent: edgeWindows,
			expected: user_agent.Classification{
				BrowserName: "Edge", BrowserVersion: "120.0.2210.91",
				OSName: "Windows", OSVersion: "10",
				DeviceClass: user_agent.DeviceDesktop,
			},
		},
		{
			name:      "Opera wins over embedded Chrome token",
			userAgent: "Mozilla/5.0 (Windows NT 6.1; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 OPR/105.0.0.0",
			expected: user_agent.Classification{
				BrowserName: "Opera", BrowserVersion: "105.0.0.0",
				OSName: "Windows", OSVersion: "7",
				DeviceClass: user_agent.DeviceDesktop,
			},
		},
		{
			name:      "Firefox on Linux",
			userAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			expected: user_agent.Classification{
				BrowserName: "Firefox", BrowserVersion: "121.0",
				OSName: "Linux", OSVersion: user_agent.Unknown,
				DeviceClass: user_agent.DeviceDesktop,
			},
		},
		{
			name:      "Safari on macOS",
			userAgent: safariMac,
			expected: user_agent.Classification{
				BrowserName: "Safari", BrowserVersion: "17.1",
				OSName: "macOS", OSVersion: "10.15.7",
				DeviceClass: user_agent.DeviceDesktop,
			},
		},
		{
			name:      "Safari on iPhone",
			userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expected: user_agent.Classification{
				BrowserName: "Safari", BrowserVersion: "14.0",
				OSName: "iOS", OSVersion: "14.6",
				DeviceClass: user_agent.DeviceMobile,
			},
		},
		{
			name:      "Safari on iPad is a tablet despite the Mobile token",
			userAgent: "Mozilla/5.0 (iPad; CPU OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expected: user_agent.Classification{
				BrowserName: "Safari", BrowserVersion: "14.0",
				OSName: "iOS", OSVersion: "14.6",
				DeviceClass: user_agent.DeviceTablet,
			},
		},
		{
			name:      "Chrome on Android phone",
			userAgent: "Mozilla/5.0 (Linux; Android 11; SM-G998B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
			expected: user_agent.Classification{
				BrowserName: "Chrome", BrowserVersion: "91.0.4472.120",
				OSName: "Android", OSVersion: "11",
				DeviceClass: user_agent.DeviceMobile,
			},
		},
		{
			name:      "Chrome on Android tablet",
			userAgent: "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			expected: user_agent.Classification{
				BrowserName: "Chrome", BrowserVersion: "120.0.0.0",
				OSName: "Android", OSVersion: "13",
				DeviceClass: user_agent.DeviceTablet,
			},
		},
		{
			name:      "Internet Explorer 11",
			userAgent: "Mozilla/5.0 (Windows NT 6.1; Trident/7.0; rv:11.0) like Gecko",
			expected: user_agent.Classification{
				BrowserName: "Internet Explorer", BrowserVersion: "11.0",
				OSName: "Windows", OSVersion: "7",
				DeviceClass: user_agent.DeviceDesktop,
			},
		},
		{
			name:      "empty string",
			userAgent: "",
			expected: user_agent.Classification{
				BrowserName: user_agent.Unknown, BrowserVersion: user_agent.Unknown,
				OSName: user_agent.Unknown, OSVersion: user_agent.Unknown,
				DeviceClass: user_agent.DeviceDesktop,
			},
		},
		{
			name:      "unrecognised garbage",
			userAgent: "totally-not-a-browser",
			expected: user_agent.Classification{
				BrowserName: user_agent.Unknown, BrowserVersion: user_agent.Unknown,
				OSName: user_agent.Unknown, OSVersion: user_agent.Unknown,
				DeviceClass: user_agent.DeviceDesktop,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, user_agent.Classify(tc.userAgent))
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	first := user_agent.Classify(edgeWindows)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, user_agent.Classify(edgeWindows))
	}
	assert.Equal(t, "Edge", first.BrowserName)
}

func TestClassifyBots(t *testing.T) {
	for _, ua := range []string{
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"curl/8.4.0",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36",
	} {
		assert.True(t, user_agent.Classify(ua).Bot, ua)
	}
	assert.False(t, user_agent.Classify(chromeWindows).Bot)
}

func TestClassifyWithTouchHints(t *testing.T) {
	t.Run("desktop-mode iPad reports touch points", func(t *testing.T) {
		result := user_agent.ClassifyWithHints(safariMac, user_agent.Hints{MaxTouchPoints: 5})
		assert.Equal(t, "iOS", result.OSName)
		assert.Equal(t, user_agent.DeviceTablet, result.DeviceClass)
	})

	t.Run("single touch point stays macOS", func(t *testing.T) {
		result := user_agent.ClassifyWithHints(safariMac, user_agent.Hints{MaxTouchPoints: 1})
		assert.Equal(t, "macOS", result.OSName)
		assert.Equal(t, user_agent.DeviceDesktop, result.DeviceClass)
	})
}

func TestNewClassifierCustomTable(t *testing.T) {
	c, err := user_agent.NewClassifier([]byte(`
browsers:
  - name: Sonar
    regex: 'Sonar/(\d+)'
    version: '$1'
`))
	require.NoError(t, err)

	result := c.Classify("Sonar/7")
	assert.Equal(t, "Sonar", result.BrowserName)
	assert.Equal(t, "7", result.BrowserVersion)
	assert.Equal(t, user_agent.Unknown, result.OSName)

	_, err = user_agent.NewClassifier([]byte("browsers: [unterminated"))
	assert.Error(t, err)
}
