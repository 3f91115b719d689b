package request

import (
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// GetByID loads one entity by its ID
type GetByID[E any, K comparable] struct {
	Get[E, *E]
	ID K `json:"id"`
}

func (GetByID[E, K]) Shape() typeinfo.Shape {
	return typeinfo.ShapeOf[GetByID[E, K]]("request.GetByID", typeinfo.Of[E](), typeinfo.Of[K]())
}

// DeleteByID deletes one entity by its ID
type DeleteByID[E any, K comparable] struct {
	Delete[E, NoResult]
	ID K `json:"id"`
}

func (DeleteByID[E, K]) Shape() typeinfo.Shape {
	return typeinfo.ShapeOf[DeleteByID[E, K]]("request.DeleteByID", typeinfo.Of[E](), typeinfo.Of[K]())
}

// CreateItems creates one entity per item
type CreateItems[E any] struct {
	CreateAll[E, *E]
	Items []E `json:"items"`
}

func (CreateItems[E]) Shape() typeinfo.Shape {
	return typeinfo.ShapeOf[CreateItems[E]]("request.CreateItems", typeinfo.Of[E]())
}
