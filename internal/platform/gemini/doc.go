// Package gemini implements task.Backend on Google's Gemini API.
//
// Audio is sent inline with a prompt asking for a speaker-attributed
// transcript; text analysis asks for a summary and a list of tasks. Both
// calls request a JSON response and decode it into domain types.
//
// Rate limiting and server-side failures reported by the API are marked
// as transport failures so the retry wrapper retries them. Blocked
// content and undecodable responses are permanent.
package gemini
