package models

// User is a registered account. Ownership of movies is tracked only here,
// through CreatedMovies; a Movie carries no owner field.
type User struct {
	Name          string        `json:"name" dynamodbav:"name"`                     // Primary key, unique
	Password      string        `json:"-" dynamodbav:"password"`                    // bcrypt hash
	SessionToken  string        `json:"-" dynamodbav:"session_token"`               // Bearer credential, never rotated
	MovieRatings  []MovieRating `json:"movie_ratings" dynamodbav:"movie_ratings"`   // Declared, not written
	CreatedMovies []string      `json:"created_movies" dynamodbav:"created_movies"` // Movie IDs owned by the user
}

// MovieRating pairs a movie reference with a rating.
type MovieRating struct {
	MovieID string  `json:"movie_id" dynamodbav:"movie_id"`
	Rating  float64 `json:"rating" dynamodbav:"rating"`
}

// SessionFilter is the equality filter a session resolves to. The same filter
// authenticates a request and scopes the owner-link update.
type SessionFilter struct {
	Name  string
	Token string
}

// Credentials represents the login and registration payload
type Credentials struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// RedirectResponse is returned by login and registration
type RedirectResponse struct {
	RedirectPath string `json:"redirectPath"`
}
