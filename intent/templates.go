package intent

import "math/rand"

// Response template pools. Wording is intentionally varied: selection is
// uniformly random, and tests assert pool membership rather than exact
// text.

// WakeResponses are the greetings spoken when a wake phrase is matched
var WakeResponses = []string{
	"Yes? I'm listening!",
	"Hi there! What can I do for you?",
	"I'm here! What do you need?",
	"You called? Ready when you are!",
	"At your service! What's up?",
}

var balanceResponses = []string{
	"Let me pull up your balance right now!",
	"Checking your coin stash, one second!",
	"Here comes your balance, fresh off the press!",
	"Counting your coins as we speak!",
}

var gamesResponses = []string{
	"Game time! Loading up the fun!",
	"Let's play! Bringing up the games for you!",
	"Ooh, I love games! Here they come!",
	"Warming up the arcade right now!",
}

var rewardsResponses = []string{
	"Let's see what your coins can get you!",
	"Opening up the rewards shelf!",
	"Time to cash in! Loading your rewards!",
	"Checking what goodies you can convert to!",
}

var referralsResponses = []string{
	"Sharing is earning! Pulling up your referral info!",
	"Let's get your friends in on this! One moment!",
	"Loading your referral link and stats!",
}

var helpResponses = []string{
	"I can check your balance, start games, show rewards, answer questions, and more. Just ask!",
	"Ask me about your coins, games, rewards, or referrals. I can also clean up text or answer questions!",
	"Try things like 'what's my balance', 'let's play a game', or 'answer this question'. I'm all ears!",
}

var statsResponses = []string{
	"Crunching your numbers right now!",
	"Here's how you've been doing! Loading your stats!",
	"Stats coming right up!",
}

var manageResponses = []string{
	"Let's fine-tune things! Opening your settings!",
	"Time for some housekeeping! One second!",
	"Opening the control room for you!",
}

var greetingResponses = []string{
	"Hello! Great to hear from you!",
	"Hey hey! How can I help today?",
	"Hi! I was hoping you'd stop by!",
	"Hello there! What shall we do?",
}

var thanksResponses = []string{
	"Anytime! That's what I'm here for!",
	"You're so welcome!",
	"My pleasure! Need anything else?",
}

var goodbyeResponses = []string{
	"See you soon! I'll be here when you need me!",
	"Bye for now! Come back anytime!",
	"Take care! It was fun chatting!",
}

// fallbackResponses signal continued learning; the engine may replace
// them with a remote completion before resolving.
var fallbackResponses = []string{
	"Hmm, I'm still learning about that one. Could you try asking another way?",
	"I don't know that yet, but I'm learning new things every day!",
	"That one's beyond me for now. I'm still learning!",
}

var apologyResponses = []string{
	"Sorry, I couldn't reach my thinking cap just now. Mind trying again?",
	"Oops, something went wrong on my end. Give me another shot?",
	"My apologies, that didn't work. Let's try once more in a moment!",
}

// pickTemplate selects one entry uniformly at random. A nil rng falls
// back to the shared source; tests inject a seeded one.
func pickTemplate(pool []string, rng *rand.Rand) string {
	if len(pool) == 0 {
		return ""
	}
	if rng == nil {
		return pool[rand.Intn(len(pool))]
	}
	return pool[rng.Intn(len(pool))]
}
