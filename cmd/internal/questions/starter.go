package questions

func tip(s string) *string { return &s }

// StarterSet is the question bank seeded into empty stores.
func StarterSet() []Question {
	return []Question{
		{
			ID:            "6f1c2a4e-0d0b-4a57-9b51-0f7a3c1e9a01",
			QuestionText:  "Tell me about a time you had to deliver a project under a tight deadline.",
			ReferenceText: "Use the STAR method: set the Situation and Task briefly, spend most of the answer on the Actions you personally took, and close with a measurable Result.",
			Chapter:       "Behavioral Interviews",
			Section:       "STAR Method",
			Category:      "behavioral",
			Difficulty:    "easy",
			Tip:           tip("Quantify the result: time saved, revenue, users."),
		},
		{
			ID:            "6f1c2a4e-0d0b-4a57-9b51-0f7a3c1e9a02",
			QuestionText:  "Describe a conflict with a teammate and how you resolved it.",
			ReferenceText: "Interviewers look for ownership and empathy. Describe the disagreement neutrally, explain how you sought to understand the other side, and show what changed afterwards.",
			Chapter:       "Behavioral Interviews",
			Section:       "Conflict and Collaboration",
			Category:      "behavioral",
			Difficulty:    "medium",
		},
		{
			ID:            "6f1c2a4e-0d0b-4a57-9b51-0f7a3c1e9a03",
			QuestionText:  "How would you design a product for elderly people to stay in touch with family?",
			ReferenceText: "Apply the CIRCLE method: Comprehend the situation, Identify the customer, Report customer needs, Cut through prioritization, List solutions, Evaluate tradeoffs, and summarize.",
			Chapter:       "Product Sense",
			Section:       "CIRCLE Method",
			Category:      "product",
			Difficulty:    "medium",
			Tip:           tip("State your assumptions about the user before proposing features."),
		},
		{
			ID:            "6f1c2a4e-0d0b-4a57-9b51-0f7a3c1e9a04",
			QuestionText:  "Which metrics would you track for a ride-sharing app's new carpool feature?",
			ReferenceText: "Use AARM: Acquisition, Activation, Retention and Monetization. Pick a north-star metric and name counter-metrics that guard against harming the core experience.",
			Chapter:       "Product Metrics",
			Section:       "AARM Framework",
			Category:      "metrics",
			Difficulty:    "hard",
		},
		{
			ID:            "6f1c2a4e-0d0b-4a57-9b51-0f7a3c1e9a05",
			QuestionText:  "Tell me about a decision you made with incomplete data.",
			ReferenceText: "Show how you framed the decision, what signals you used, how you limited downside risk, and how you revisited the decision once more data arrived.",
			Chapter:       "Behavioral Interviews",
			Section:       "Judgment",
			Category:      "behavioral",
			Difficulty:    "hard",
		},
	}
}
