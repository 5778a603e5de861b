// Package quickstart provides simple example types for documentation.
package quickstart

// [snippet:types]
type News struct {
	ID        int32
	Title     string
	Body      *string
	CreatedAt uint32
}

type ListNewsRequest struct {
	Limit  *int32
	Offset *int32
}

type ListNewsResponse struct {
	Items []News
}

type CreateNewsRequest struct {
	Title string `validate:"required,min=3"`
	Body  *string
}

// [/snippet:types]
