package models

// Movie is the stored catalog record.
type Movie struct {
	ID         string  `json:"-" dynamodbav:"movie_id"`
	Title      string  `json:"title" dynamodbav:"title"`
	Author     string  `json:"author" dynamodbav:"author"`
	ImageURL   string  `json:"image_url" dynamodbav:"image_url"`
	AvgRating  float32 `json:"avg_rating" dynamodbav:"avg_rating"`
	NumRatings uint32  `json:"num_ratings" dynamodbav:"num_ratings"`
}

// MovieView is the read-side shape: the stored fields plus the store-assigned id.
type MovieView struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	ImageURL   string  `json:"image_url"`
	AvgRating  float32 `json:"avg_rating"`
	NumRatings uint32  `json:"num_ratings"`
}

// View decorates the movie with its identifier.
func (m Movie) View() MovieView {
	return MovieView{
		ID:         m.ID,
		Title:      m.Title,
		Author:     m.Author,
		ImageURL:   m.ImageURL,
		AvgRating:  m.AvgRating,
		NumRatings: m.NumRatings,
	}
}

// MovieUploadRequest represents the add-movie payload
type MovieUploadRequest struct {
	Title  string     `json:"title"`
	Author string     `json:"author"`
	Image  ImageBytes `json:"image"`
}

// MessageResponse acknowledges a write
type MessageResponse struct {
	Message string `json:"message"`
}
