package whatsapp

import "testing"

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"arabic", "السلام عليكم ورحمة الله", "ar"},
		{"english", "hello, how are you?", "en"},
		{"empty", "", "en"},
		{"mostly latin with a few arabic words", "what does السلام mean in this long english sentence", "en"},
		{"arabic with punctuation", "ما هو حكم الصلاة؟", "ar"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectLanguage(tc.text); got != tc.want {
				t.Errorf("DetectLanguage(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}
