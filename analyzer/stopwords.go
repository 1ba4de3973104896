package analyzer

import "golang.org/x/text/language"

// Stop-word sets for the transcript languages the text analyzer understands.
// Anything else falls back to English.

var stopwordLanguages = []language.Tag{
	language.English,
	language.Vietnamese,
}

var stopwordMatcher = language.NewMatcher(stopwordLanguages)

func stopwordsFor(lang string) map[string]struct{} {
	tag, err := language.Parse(lang)
	if err != nil {
		return englishStopwords
	}
	_, idx, _ := stopwordMatcher.Match(tag)
	if idx == 1 {
		return vietnameseStopwords
	}
	return englishStopwords
}

var englishStopwords = wordSet(
	"the", "and", "for", "are", "but", "not", "you", "all", "can", "had",
	"her", "was", "one", "our", "out", "day", "get", "has", "him", "his",
	"how", "man", "new", "now", "old", "see", "two", "way", "who", "boy",
	"did", "its", "let", "put", "say", "she", "too", "use", "that", "with",
	"have", "this", "will", "your", "from", "they", "know", "want", "been",
	"good", "much", "some", "time", "very", "when", "come", "here", "just",
	"like", "long", "make", "many", "more", "most", "over", "such", "take",
	"than", "them", "well", "were", "what", "about", "there", "their",
	"which", "would", "could", "should", "these", "those", "then", "into",
	"also", "because", "being", "doing", "going", "really", "right",
	"thing", "think", "where", "every", "other", "after", "before", "while",
	"again", "still", "only", "even", "back", "down", "yeah", "okay",
)

var vietnameseStopwords = wordSet(
	"và", "của", "cho", "là", "để", "trong", "với", "này", "các", "một",
	"những", "được", "có", "không", "người", "khi", "đã", "sẽ", "đó",
	"như", "từ", "tại", "về", "theo", "trên", "cũng", "nhưng", "vào",
	"còn", "thì", "ra", "nếu", "bị", "bởi", "do", "tôi", "bạn", "chúng",
	"mình", "họ", "nó", "ai", "gì", "nào", "đây", "kia", "ấy", "rằng",
	"vì", "nên", "mà", "hay", "hoặc", "rồi", "lại", "nữa", "đến", "đi",
	"làm", "biết", "thấy", "nói", "muốn", "phải", "rất", "quá", "lắm",
	"thật", "chỉ", "mới", "vẫn", "đang", "sau", "trước", "giữa", "ngoài",
	"dưới", "bên", "cả", "mọi", "từng", "vậy", "thế", "sao", "đâu",
)

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
