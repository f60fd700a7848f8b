package notifications

import "fmt"

type category int

const (
	categoryAlways category = iota
	categorySubmission
	categoryCompletion
	categoryError
)

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type template struct {
	category category
	title    string
	tags     []string
	priority string
	body     func(subject string, p Payload) string
}

var templates = map[Event]template{
	EventTaskSubmitted: {
		category: categorySubmission,
		title:    "Submitted",
		tags:     []string{"task", "submitted"},
		body:     func(s string, _ Payload) string { return "Submitted: " + s },
	},
	EventTaskCompleted: {
		category: categoryCompletion,
		title:    "Complete",
		tags:     []string{"task", "completed"},
		body:     func(s string, _ Payload) string { return "✅ Complete: " + s },
	},
	EventBatchCompleted: {
		category: categoryCompletion,
		title:    "Batch Complete",
		tags:     []string{"batch", "completed"},
		body: func(s string, p Payload) string {
			return fmt.Sprintf("✅ %s: %d succeeded, %d failed", s, p.count("success"), p.count("failed"))
		},
	},
	EventTaskFailed: {
		category: categoryError,
		title:    "Failed",
		tags:     []string{"error", "alert"},
		priority: "high",
		body: func(s string, p Payload) string {
			return fmt.Sprintf("❌ %s failed: %s", s, orUnknown(p.text("error")))
		},
	},
	EventTaskTimedOut: {
		category: categoryError,
		title:    "Timed Out",
		tags:     []string{"timeout", "alert"},
		priority: "high",
		body: func(s string, p Payload) string {
			return fmt.Sprintf("⏱️ %s timed out: %s", s, orUnknown(p.text("error")))
		},
	},
	EventLoadFailed: {
		category: categoryError,
		title:    "Load Failed",
		tags:     []string{"load", "alert"},
		priority: "high",
		body: func(_ string, p Payload) string {
			return fmt.Sprintf("❌ Could not load chapter %s: %s", orUnknown(p.text("chapter")), orUnknown(p.text("error")))
		},
	},
	EventTest: {
		title:    "Test",
		tags:     []string{"test"},
		priority: "low",
		body:     func(string, Payload) string { return "🧪 Notification system test" },
	},
}

// render builds the message for event. Batches with failures get a marked
// title.
func render(event Event, tpl template, p Payload) message {
	title := tpl.title
	if event == EventBatchCompleted && p.count("failed") > 0 {
		title += " (with errors)"
	}
	return message{
		title:    "Storyreel - " + title,
		body:     tpl.body(subject(p), p),
		tags:     append([]string{"storyreel"}, tpl.tags...),
		priority: tpl.priority,
	}
}

// subject is the humanized operation name plus its target, e.g.
// "scene image (sc-7)".
func subject(p Payload) string {
	s := orDefault(humanize(p.text("operation")), "operation")
	if target := p.text("target"); target != "" {
		s += " (" + target + ")"
	}
	return s
}

func humanize(operation string) string {
	out := []byte(operation)
	for i, b := range out {
		if b == '_' {
			out[i] = ' '
		}
	}
	return string(out)
}

func orUnknown(value string) string { return orDefault(value, "unknown") }

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
