// internal/names/names.go

// Package names generates memorable fork names like "Gandalf the Deprecated"
// or "Three Raccoons in a Trenchcoat, CPA".
package names

import (
	"fmt"
	"math/rand"
)

var firstNames = []string{
	// Simple/Classic
	"Gandalf", "Merlin", "Scott", "Trevor", "Kevin", "Barry", "Nigel",
	"Reginald", "Bartholomew", "Cornelius", "Thaddeus", "Mortimer",
	// Full names with titles
	"Mrs. Willoughby", "Father Paul Devonly", "Dr. Spaceman", "Sergeant Pickles",
	"Professor Snugglebottom", "Captain Whiskers", "Dame Judith", "Sir Reginald",
	"Bishop Flanagan", "Reverend Chaos", "Admiral Biscuits", "Colonel Mustard",
	// Cute/Pet names
	"Snookums", "Pudding", "Muffin", "Waffles", "Sprocket", "Gizmo", "Pebbles",
	"Mr. Fluffington", "Princess Thunderpaws", "Lord Wigglebottom", "Tiny Steve",
	// Dramatic/Dark
	"The Dread Lord Abaddon", "Xarthok the Defiler", "The Unnamed One",
	"Entropy Prime", "The Void Walker", "Chaos Incarnate", "The Final Arbiter",
	// Corporate/Modern
	"Chad from Marketing", "Brenda in HR", "The Scrum Master", "That Guy from IT",
	"Regional Manager Dwight", "Senior Vice President Jenkins", "Intern #47",
	// Absurd
	"A Swarm of Bees", "Three Raccoons in a Trenchcoat", "The Concept of Thursday",
	"The Stepmother You Never Wanted", "An Increasingly Nervous Flamingo", "Greg",
}

var suffixesSpace = []string{
	"the Magnificent", "the Terrible", "the Unready", "the Adequate",
	"the All-Knowing", "the Mostly-Knowing", "the Occasionally Correct",
	"the Destroyer of Worlds", "the Filer of Taxes", "the Sender of Emails",
	"the Inevitable", "the Procrastinator", "the Early-to-Bed",
	"the Devourer", "the Snack-Sized", "the Family-Sized",
	"the Recursive", "the Deprecated", "the Legacy Code",
}

var suffixesComma = []string{
	"Attorney at Law", "CPA", "PhD", "Esq.", "MD",
	"Earl of Croix", "Duke of URL", "Baron of the Spreadsheet",
	"Viscount of the Third Floor", "Lord of the Ping", "Count of Monte Crisco",
	"Regional Manager", "Associate Vice President", "Junior Senior Developer",
	"Defender of the Realm", "Keeper of the Sacred Changelog",
	"who is running late", "who forgot to mute", "who meant to reply-all",
	"who's not angry, just disappointed",
}

var suffixesDash = []string{
	"Sexiest Person, 1998-99 (Elevator World Magazine)",
	"Winner, Most Consistent (Participation Magazine)",
	"As Seen on TV's Matlock",
	"Now With 20% More Existential Dread!",
	"Terms and Conditions Apply",
	"Voted 'Most Likely to Defecate Standing'",
	"Certified Pre-Owned", "Some Assembly Required",
	"Batteries Not Included", "Your Mileage May Vary",
	"Not Valid in Quebec", "Please Consult Your Doctor",
	"Your Childhood Imaginary Friend", "Who's not my real mum",
}

var suffixesOfThe = []string{
	"Flesh Cathedral", "Screaming Void", "Infinite Spreadsheet",
	"Forbidden Repository", "Haunted Codebase", "Eternal Standup",
	"Third-Floor Breakroom", "Unclosed Parenthesis", "Merge Conflict",
	"Sacred Timeline", "Forbidden Snack Drawer", "Lost Documentation",
	"Thousand Jira Tickets", "Unanswered Slack Messages", "Pending PRs",
}

// ForkName holds the short and full versions of a generated name.
type ForkName struct {
	// Nickname is just the first part.
	Nickname string
	// FullName is the complete generated name.
	FullName string
}

// Generate picks a random fork name.
func Generate() ForkName {
	first := firstNames[rand.Intn(len(firstNames))]

	var separator string
	var suffixes []string
	switch rand.Intn(4) {
	case 0:
		separator, suffixes = " ", suffixesSpace
	case 1:
		separator, suffixes = ", ", suffixesComma
	case 2:
		separator, suffixes = " — ", suffixesDash
	default:
		separator, suffixes = " of the ", suffixesOfThe
	}
	suffix := suffixes[rand.Intn(len(suffixes))]

	return ForkName{
		Nickname: first,
		FullName: fmt.Sprintf("%s%s%s", first, separator, suffix),
	}
}
