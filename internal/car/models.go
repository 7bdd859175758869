package car

import "time"

type Car struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Company   string    `json:"carCompany"`
	Model     string    `json:"model"`
	Year      int       `json:"year"`
	Color     string    `json:"color"`
	Plate     string    `json:"plate"`
	ImageURL  string    `json:"image"`
	Reports   int       `json:"numberOfReports"`
	CreatedAt time.Time `json:"created_at"`
}

type CarRequest struct {
	Company  string `json:"carCompany" validate:"required"`
	Model    string `json:"model" validate:"required"`
	Year     int    `json:"year" validate:"required,gte=1950,lte=2100"`
	Color    string `json:"color" validate:"required"`
	Plate    string `json:"plate" validate:"required"`
	ImageURL string `json:"image" validate:"omitempty,url"`
}

type RecognizeRequest struct {
	ImageURL string `json:"image_url" validate:"required,url"`
}

type RecognizeResult struct {
	Plate string `json:"plate"`
}
