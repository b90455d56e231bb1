package usecase

// placeholderPhrases are posted while the answer is being fetched.
var placeholderPhrases = []string{
	"Looking through the knowledge base :mag:",
	"Let me check that for you :thinking_face:",
	"Working on an answer :hourglass_flowing_sand:",
	"Digging through the articles :books:",
	"One moment, reading up on it :eyes:",
	"Asking the knowledge base :speech_balloon:",
	"Good question! Finding out :bulb:",
}
