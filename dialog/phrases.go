// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package dialog

import (
	"fmt"

	"github.com/munsheeriocod/voi-ai/intent"
	"github.com/munsheeriocod/voi-ai/session"
)

// address prefixes a line with the caller's name when we know it
func address(name string) string {
	if name == "" {
		return ""
	}
	return name + ", "
}

func greeting(company, name string) string {
	hey := "Hey there"
	if name != "" {
		hey = "Hey " + name
	}
	return fmt.Sprintf("%s, This is a feedback call from %s. Are you facing any issues with our service?", hey, company)
}

func clarify(company, name string) string {
	hey := "Hey there, "
	if name != "" {
		hey = "Hey " + name + ", "
	}
	return fmt.Sprintf("%sI didn't catch that. Let me ask you directly - are you happy with %s? We have a special offer that I'd love to tell you about.", hey, company)
}

// question is asked after the first utterance for the non-educational intents
func question(in intent.Intent, company, name string) string {
	switch in {
	case intent.Positive:
		return fmt.Sprintf("%sThat's fantastic! Which feature of %s do you find most useful? I'd love to tell you about how our premium version enhances that feature.", address(name), company)
	case intent.Negative:
		return fmt.Sprintf("%sI understand you're having some issues. Could you tell me which specific aspect of %s is causing you trouble? This will help me provide the most relevant solution.", address(name), company)
	default:
		return address(name) + "I'd love to understand your business needs better. What's the most important feature you're looking for in a business solution?"
	}
}

var followUps = map[session.Branch]string{
	session.BranchFavoriteFeature: "That's a great choice! Our premium version takes this feature to the next level. Would you like to hear about the premium enhancements?",
	session.BranchConcern:         "I understand. Our premium version specifically addresses this concern. Would you like to hear how?",
	session.BranchBusinessNeeds:   "Based on your needs, I think our premium version would be perfect for you. Would you like to hear about our special offer?",
}

const genericFollowUp = "Would you like to know more about this, or shall we discuss how our premium version can help you?"

func followUp(branch session.Branch, name string) string {
	if f, ok := followUps[branch]; ok {
		return address(name) + f
	}
	return address(name) + genericFollowUp
}

func finalOffer(name string) string {
	return address(name) + "Before we end, would you like to hear about our special 30% discount offer? It's only available for the next 24 hours. Just say yes to learn more!"
}

func errorOffer(name string) string {
	return "I'm sorry, I ran into a problem on my end. " + address(name) + "Would you like to hear about our special offer? Just say yes to learn more about our premium version!"
}

func goodbye(company, name string) string {
	if name != "" {
		return fmt.Sprintf("Thank you for your time, %s. Have a great day with %s!", name, company)
	}
	return fmt.Sprintf("Thank you for your time. Have a great day with %s!", company)
}

const closing = "Thank you for your time. Goodbye!"

// FixedPhrases lists every line that does not depend on the caller so their
// audio can be synthesized ahead of the first call.
func FixedPhrases(company string) []string {
	phrases := []string{
		greeting(company, ""),
		clarify(company, ""),
		question(intent.Positive, company, ""),
		question(intent.Negative, company, ""),
		question(intent.Neutral, company, ""),
		finalOffer(""),
		goodbye(company, ""),
	}
	return phrases
}
