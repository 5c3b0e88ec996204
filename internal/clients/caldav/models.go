package caldav

// Calendar is a collection found under the user's calendar home.
type Calendar struct {
	Path        string
	DisplayName string
}
