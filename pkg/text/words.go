package text

// commonWords is the vocabulary the garble gate trusts.
var commonWords = []string{
	"i", "a", "am", "an", "as", "at", "be", "by", "do", "go", "he", "if",
	"in", "is", "it", "me", "my", "no", "of", "on", "or", "so", "to", "up",
	"us", "we", "the", "and", "for", "are", "but", "not", "you", "all", "any",
	"can", "had", "has", "her", "him", "his", "how", "its", "may", "new",
	"now", "old", "our", "out", "own", "say", "she", "too", "two", "use",
	"who", "why", "yes", "was", "did", "get", "got", "let", "put", "run",
	"set", "try", "way", "day", "man", "big", "see", "ask",
	"hello", "hi", "hey", "thanks", "thank", "good", "well", "help", "know",
	"like", "just", "about", "doing", "great", "here", "name", "what", "your",
	"been", "come", "each", "find", "from", "gave", "have", "keep", "last",
	"long", "look", "made", "many", "more", "much", "must", "need", "only",
	"over", "said", "some", "take", "tell", "than", "that", "them", "then",
	"they", "this", "time", "very", "want", "were", "will", "with", "work",
	"year", "eigen", "sure", "feel", "fine", "glad", "happy", "real",
	"haha", "lol", "nice", "cool", "love", "best", "also", "back", "give",
	"goodbye", "bye", "morning", "evening", "night", "welcome", "sorry",
	"joke", "funny", "laugh", "smart", "learn", "chat", "talk", "answer",
	"question", "wonder", "today", "tomorrow", "yesterday", "life",
	"make", "most", "such", "used", "call", "first", "could", "would",
	"should", "being", "after", "other", "still", "thing", "think", "those",
	"where", "which", "while", "world", "right", "never", "every",
	"there", "their", "these", "might", "quite", "really",
	"please", "always", "people", "don",
	"ai", "observe", "observation", "observer", "effect", "geometry",
	"geometric", "watch", "step", "result", "final", "measure", "changed",
	"track", "happen", "state", "output", "changes", "language",
	"finds", "models", "mode", "strict", "endpoint", "holonomy",
	"temporal", "when", "things",
}
