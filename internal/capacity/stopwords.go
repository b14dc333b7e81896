package capacity

// stopwords is a small fixed English stopword set used to filter noise
// terms out of key_concepts extraction. It is intentionally short: the
// summarizer only needs to suppress the most common function words, not
// perform full linguistic stopword removal.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "if": true, "in": true, "into": true,
	"is": true, "it": true, "its": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "then": true, "there": true, "this": true,
	"to": true, "was": true, "were": true, "will": true, "with": true,
	"we": true, "you": true, "your": true, "can": true, "not": true,
}

func isStopword(term string) bool { return stopwords[term] }
