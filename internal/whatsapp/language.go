package whatsapp

// DetectLanguage guesses the language of a user message for registration.
// Arabic-script text maps to "ar"; everything else defaults to "en".
func DetectLanguage(text string) string {
	if text != "" && isRTL(text) {
		return "ar"
	}
	return "en"
}

// isRTL reports whether more than 30% of the runes are Arabic-script.
func isRTL(text string) bool {
	runes := []rune(text)
	if len(runes) == 0 {
		return false
	}

	rtl := 0
	for _, r := range runes {
		switch {
		case r >= 0x0600 && r <= 0x06FF, // Arabic
			r >= 0x0750 && r <= 0x077F, // Arabic Supplement
			r >= 0x08A0 && r <= 0x08FF, // Arabic Extended-A
			r >= 0xFB50 && r <= 0xFDFF, // Arabic Presentation Forms-A
			r >= 0xFE70 && r <= 0xFEFF: // Arabic Presentation Forms-B
			rtl++
		}
	}

	return float64(rtl)/float64(len(runes)) > 0.3
}
