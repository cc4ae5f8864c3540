package config

const (
	// MaxDashboardNameLength is the maximum length for dashboard names.
	// Friendly URLs are derived from names, so keep them short enough to read.
	MaxDashboardNameLength = 255

	// MaxDescriptionLength is the maximum length for dashboard descriptions.
	MaxDescriptionLength = 5000

	// MaxReleaseNotesLength is the maximum length for publish release notes.
	MaxReleaseNotesLength = 5000

	// MaxTopicAreaNameLength is the maximum length for topic area names.
	MaxTopicAreaNameLength = 255

	// MaxWidgetNameLength is the maximum length for widget names.
	MaxWidgetNameLength = 255

	// MaxFriendlyURLLength bounds a friendly URL after normalisation.
	MaxFriendlyURLLength = 255
)
