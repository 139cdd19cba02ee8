package language

import "testing"

func TestToISO2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"eng", "en"},
		{"fre", "fr"},
		{"chi", "zh"},
		{"zh-cn", "zh"},
		{"zh-TW", "zh"},
		{"en-us", "en"},
		{"english", "en"},
		{"xy", "xy"},
		{"xyz", ""},
		{"", ""},
		{" ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := ToISO2(tt.input); result != tt.expected {
				t.Errorf("ToISO2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToISO3(t *testing.T) {
	tests := map[string]string{"en": "eng", "zh-cn": "zho", "xyz": "xyz", "": "und", "xy": "und"}
	for input, want := range tests {
		if got := ToISO3(input); got != want {
			t.Errorf("ToISO3(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCanonical(t *testing.T) {
	tests := map[string]string{
		"zh":      "zh-cn",
		"ZH_CN":   "zh-cn",
		"chs":     "zh-cn",
		"zh-Hant": "zh-tw",
		"cht":     "zh-tw",
		"chinese": "zh-cn",
		"eng":     "en",
		"en-US":   "en",
		"unknown": "unknown",
		"":        "",
	}
	for input, want := range tests {
		if got := Canonical(input); got != want {
			t.Errorf("Canonical(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"zh-cn":   "简体中文",
		"cht":     "繁体中文",
		"en":      "English",
		"ja":      "日本語",
		"":        "Unknown",
		"unknown": "Unknown",
		"xx":      "XX",
	}
	for input, want := range tests {
		if got := DisplayName(input); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestMatches(t *testing.T) {
	if !Matches("zh-cn", "zh") {
		t.Error("expected zh-cn to satisfy zh")
	}
	if !Matches("en", "en-us") {
		t.Error("expected en to satisfy en-us")
	}
	if Matches("zh-tw", "zh-cn") {
		t.Error("did not expect traditional to satisfy simplified")
	}
	if Matches("", "en") {
		t.Error("blank language must not match")
	}
}

func TestFromFileName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Movie.2010.chs.srt", "zh-cn"},
		{"Movie.2010.简体.ass", "zh-cn"},
		{"Movie.2010.cht.srt", "zh-tw"},
		{"Movie.2010.zh-TW.srt", "zh-tw"},
		{"Movie.2010.繁中.srt", "zh-tw"},
		{"Movie.2010.English.srt", "en"},
		{"Movie.2010.eng.srt", "en"},
		{"Movie.2010.jpn.ass", "ja"},
		{"Movie.2010.kor.srt", "ko"},
		{"Movie.2010.srt", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromFileName(tt.name); got != tt.want {
				t.Errorf("FromFileName(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestNormalizeList(t *testing.T) {
	got := NormalizeList([]string{"zh", "ZH-CN", "eng", "", "en"})
	want := []string{"zh-cn", "en"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("NormalizeList = %v, want %v", got, want)
		}
	}
}

func TestDetectContentEnglish(t *testing.T) {
	text := "1\n00:00:01,000 --> 00:00:04,000\n<i>You mustn't be afraid to dream a little bigger, darling.</i>\n\n" +
		"2\n00:00:05,000 --> 00:00:08,000\nWe were dreaming of a world that we built together, and it was beautiful.\n"
	lang, ok := DetectContent(text)
	if !ok || lang != "en" {
		t.Fatalf("DetectContent = %q, %v; want en, true", lang, ok)
	}
}

func TestDetectContentChineseScript(t *testing.T) {
	simplified := "1\n00:00:01,000 --> 00:00:04,000\n我们这里说的话没有人会听见，你还记得那个时候吗？我们一起回家了。\n"
	traditional := "1\n00:00:01,000 --> 00:00:04,000\n我們這裡說的話沒有人會聽見，你還記得那個時候嗎？我們一起回家了。\n"
	if lang, ok := DetectContent(simplified); !ok || lang != SimplifiedChinese {
		t.Fatalf("DetectContent(simplified) = %q, %v", lang, ok)
	}
	if lang, ok := DetectContent(traditional); !ok || lang != TraditionalChinese {
		t.Fatalf("DetectContent(traditional) = %q, %v", lang, ok)
	}
}

func TestDetectContentEmpty(t *testing.T) {
	if lang, ok := DetectContent("1\n00:00:01,000 --> 00:00:02,000\n"); ok || lang != Unknown {
		t.Fatalf("expected unknown for cue-only text, got %q, %v", lang, ok)
	}
}
