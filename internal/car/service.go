package car

import (
	"context"
	"errors"
	"strings"

	"backend-platego/internal/db"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var ErrDuplicatePlate = errors.New("car with this plate already exists")

type Service struct {
	db         db.Querier
	recognizer *Recognizer
	validate   *validator.Validate
}

func NewService(querier db.Querier, recognizer *Recognizer) *Service {
	return &Service{db: querier, recognizer: recognizer, validate: validator.New()}
}

func (s *Service) Create(ctx context.Context, ownerID string, req CarRequest) (Car, error) {
	if err := s.validate.Struct(req); err != nil {
		return Car{}, err
	}

	car := Car{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		Company:  req.Company,
		Model:    req.Model,
		Year:     req.Year,
		Color:    req.Color,
		Plate:    normalizePlate(req.Plate),
		ImageURL: req.ImageURL,
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO cars (id, owner_id, company, model, year, color, plate, image_url)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, car.ID, car.OwnerID, car.Company, car.Model, car.Year, car.Color, car.Plate, car.ImageURL)
	if err := row.Scan(&car.CreatedAt); err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			return Car{}, ErrDuplicatePlate
		}
		return Car{}, err
	}
	return car, nil
}

func (s *Service) Update(ctx context.Context, ownerID, carID string, req CarRequest) (Car, error) {
	if err := s.validate.Struct(req); err != nil {
		return Car{}, err
	}

	car := Car{
		ID:       carID,
		OwnerID:  ownerID,
		Company:  req.Company,
		Model:    req.Model,
		Year:     req.Year,
		Color:    req.Color,
		Plate:    normalizePlate(req.Plate),
		ImageURL: req.ImageURL,
	}

	row := s.db.QueryRow(ctx, `
		UPDATE cars
		SET company=$3, model=$4, year=$5, color=$6, plate=$7, image_url=$8
		WHERE id=$1 AND owner_id=$2
		RETURNING created_at, reports
	`, car.ID, car.OwnerID, car.Company, car.Model, car.Year, car.Color, car.Plate, car.ImageURL)
	if err := row.Scan(&car.CreatedAt, &car.Reports); err != nil {
		return Car{}, err
	}
	return car, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]Car, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, company, model, year, color, plate, image_url, reports, created_at
		FROM cars WHERE owner_id=$1
		ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cars []Car
	for rows.Next() {
		var c Car
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Company, &c.Model, &c.Year, &c.Color, &c.Plate, &c.ImageURL, &c.Reports, &c.CreatedAt); err != nil {
			return nil, err
		}
		cars = append(cars, c)
	}
	return cars, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, carID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM cars WHERE id=$1 AND owner_id=$2`, carID, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("car not found")
	}
	return nil
}

// Recognize forwards a hosted image to the plate recognition service.
func (s *Service) Recognize(ctx context.Context, req RecognizeRequest) (RecognizeResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return RecognizeResult{}, err
	}
	if s.recognizer == nil {
		return RecognizeResult{}, errors.New("plate recognition not configured")
	}
	plate, err := s.recognizer.Read(ctx, req.ImageURL)
	if err != nil {
		return RecognizeResult{}, err
	}
	return RecognizeResult{Plate: normalizePlate(plate)}, nil
}

func normalizePlate(plate string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(plate), "-", ""))
}
