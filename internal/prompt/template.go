package prompt

import "github.com/TobiSchelling/reviewguard/internal/records"

// DefaultVersion identifies DefaultTemplate in cache keys and run records.
const DefaultVersion = "policy-v4"

const instruction = `You are a professional review moderator evaluating Google reviews of business locations. Decide whether each review breaks a content policy, then rate how relevant and how informative it is.

Policies (flag each one that is violated):

1. advertisement: promotional content, calls to action, discount or promo codes, links or URLs, contact details offered for business.
   Example violations: "Check out our website at www.example.com", "Use code SAVE20 for a discount!"
2. irrelevant: content unrelated to this business, such as politics, unrelated personal stories, or an experience at a different place.
3. false_review: rants or claims that do not reflect a customer's own experience, such as "I never visited but heard it's bad", or sweeping negative statements with no specifics.
4. vulgarity: profanity, slurs, harassment or sexually explicit language.

Ratings:

relevance
  - low: no mention of the business or what it offers, e.g. "Great location. Highly recommended."
  - average: some mention of the business, its products, staff or opening hours, without much detail, e.g. "The food is great and Anne was a friendly server."
  - high: detailed mention of the business, its products or services, staff and a specific experience.

quality
  - low: empty, gibberish, improper language, or only a few words, e.g. "Good", "Meh", "Great products and service".
  - average: some detail about the experience but little depth, e.g. "The staff were friendly, but the place was a bit noisy."
  - high: specific, well written detail on aspects such as quality, service, ambiance and value for money.

If any policy is violated you may answer "n/a" for relevance and quality.

Optionally add 0-100 scores: relevance_score, quality_score, and visited_likelihood (how likely the reviewer actually visited).

Analyse the review together with the location metadata and answer with exactly one JSON object:

{
  "advertisement": true | false,
  "irrelevant": true | false,
  "false_review": true | false,
  "vulgarity": true | false,
  "relevance": "low" | "average" | "high" | "n/a",
  "quality": "low" | "average" | "high" | "n/a",
  "justification": "one or two sentences",
  "relevance_score": 0-100,
  "quality_score": 0-100,
  "visited_likelihood": 0-100
}

Think step by step, then output only valid JSON.`

const exampleAnswer = `Here is an example of a review evaluation:
{
  "advertisement": false,
  "irrelevant": false,
  "false_review": false,
  "vulgarity": false,
  "relevance": "high",
  "quality": "high",
  "justification": "Mentions staff, service speed, pricing and products with clear detail.",
  "relevance_score": 95,
  "quality_score": 90,
  "visited_likelihood": 95
}`

const acknowledgement = "Thank you for the example. I am ready to evaluate reviews. Please provide the next one."

var exampleRow = records.Row{
	Text: "The Plumbing Bros provided excellent service. Gabriel was professional and did not make me wait for long, " +
		"fixing my toilet in a short span of time. The pricing was very reasonable and cheaper than most found in the market. " +
		"They also provide high quality plumbing products, such as their pipe wrenches, for us to choose from. " +
		"Highly recommend this service and their products for anyone in need of plumbing work.",
	Name:       "Plumbing Bros",
	Categories: []string{"Plumbing Services", "Home Services", "Plumbing Products"},
	Address:    "123 Main St, Springfield, USA",
	Hours: []records.DayHours{
		{Day: "Thursday", Hours: "8AM-5PM"},
		{Day: "Friday", Hours: "8AM-5PM"},
		{Day: "Saturday", Hours: "Closed"},
		{Day: "Sunday", Hours: "Closed"},
		{Day: "Monday", Hours: "8AM-5PM"},
		{Day: "Tuesday", Hours: "8AM-5PM"},
		{Day: "Wednesday", Hours: "8AM-5PM"},
	},
	Time: "2021-06-10 09:50:58 EDT",
}

// DefaultTemplate is the four-flag policy template with low/average/high
// ratings.
func DefaultTemplate() Template {
	return Template{
		Version:         DefaultVersion,
		Instruction:     instruction,
		ExampleAnswer:   exampleAnswer,
		ExampleInput:    RequestText(exampleRow),
		Acknowledgement: acknowledgement,
	}
}
