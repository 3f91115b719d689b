// Package request defines the verb markers application requests embed.
// A request struct embeds exactly one marker, which tells the engine the
// verb, the entity type and the result type of the request:
//
//	type CreateUser struct {
//		request.Create[User, UserDTO]
//		Name string
//	}
package request

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/crudkit/internal/crud/response"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// Verb identifies the operation a request performs
type Verb int

const (
	VerbCreate Verb = iota
	VerbCreateAll
	VerbGet
	VerbGetAll
	VerbPagedGetAll
	VerbUpdate
	VerbUpdateAll
	VerbDelete
	VerbDeleteAll
	VerbSave
	VerbMerge
	VerbSynchronize
)

// String returns the string representation of the verb
func (v Verb) String() string {
	switch v {
	case VerbCreate:
		return "create"
	case VerbCreateAll:
		return "create_all"
	case VerbGet:
		return "get"
	case VerbGetAll:
		return "get_all"
	case VerbPagedGetAll:
		return "paged_get_all"
	case VerbUpdate:
		return "update"
	case VerbUpdateAll:
		return "update_all"
	case VerbDelete:
		return "delete"
	case VerbDeleteAll:
		return "delete_all"
	case VerbSave:
		return "save"
	case VerbMerge:
		return "merge"
	case VerbSynchronize:
		return "synchronize"
	default:
		return "unknown"
	}
}

// Mutates reports whether the verb writes to storage
func (v Verb) Mutates() bool {
	switch v {
	case VerbGet, VerbGetAll, VerbPagedGetAll:
		return false
	}
	return true
}

// Batch reports whether the verb works on a collection of input items
func (v Verb) Batch() bool {
	switch v {
	case VerbCreateAll, VerbUpdateAll, VerbDeleteAll, VerbMerge, VerbSynchronize:
		return true
	}
	return false
}

// NoResult as the result type makes a request succeed without payload
type NoResult struct{}

// Descriptor is what a verb marker tells the engine about its request
type Descriptor struct {
	Verb   Verb
	Entity reflect.Type
	// Result is the projected element type, nil for NoResult
	Result reflect.Type
	// One converts a projected value to the result type
	One func(v any) (any, error)
	// Collect builds the typed result slice
	Collect func(values []any) (any, error)
	// Page builds the typed page
	Page func(values []any, number, size, count, total int) (any, error)
}

// Request is implemented by every struct embedding a verb marker
type Request interface {
	Descriptor() Descriptor
}

// Describe returns the descriptor of req
func Describe(req any) (Descriptor, error) {
	r, ok := req.(Request)
	if !ok {
		return Descriptor{}, fmt.Errorf("%T does not embed a request verb", req)
	}
	return r.Descriptor(), nil
}

func describe[E any, Out any](verb Verb) Descriptor {
	d := Descriptor{
		Verb:   verb,
		Entity: typeinfo.Base(typeinfo.Of[E]()),
	}
	if typeinfo.Of[Out]() == typeinfo.Of[NoResult]() {
		d.One = func(any) (any, error) { return nil, nil }
		d.Collect = func([]any) (any, error) { return nil, nil }
		d.Page = func([]any, int, int, int, int) (any, error) { return nil, nil }
		return d
	}

	d.Result = typeinfo.Of[Out]()
	d.One = func(v any) (any, error) {
		return one[Out](v)
	}
	d.Collect = func(values []any) (any, error) {
		return collect[Out](values)
	}
	d.Page = func(values []any, number, size, count, total int) (any, error) {
		items, err := collect[Out](values)
		if err != nil {
			return nil, err
		}
		return response.Page[Out]{
			Items:          items,
			PageNumber:     number,
			PageSize:       size,
			PageCount:      count,
			TotalItemCount: total,
		}, nil
	}
	return d
}

func one[Out any](v any) (Out, error) {
	out, ok := typeinfo.To[Out](v)
	if !ok {
		return out, fmt.Errorf("result %T is not %s", v, typeinfo.Of[Out]())
	}
	return out, nil
}

func collect[Out any](values []any) ([]Out, error) {
	out := make([]Out, 0, len(values))
	for _, v := range values {
		typed, err := one[Out](v)
		if err != nil {
			return nil, err
		}
		out = append(out, typed)
	}
	return out, nil
}

func shape[M any, E any, Out any](definition string) typeinfo.Shape {
	return typeinfo.ShapeOf[M](definition, typeinfo.Of[E](), typeinfo.Of[Out]())
}

// Create builds one entity from the request
type Create[E any, Out any] struct{}

func (Create[E, Out]) Descriptor() Descriptor { return describe[E, Out](VerbCreate) }

func (Create[E, Out]) Shape() typeinfo.Shape {
	return shape[Create[E, Out], E, Out]("request.Create")
}

// CreateAll builds one entity per input item
type CreateAll[E any, Out any] struct{}

func (CreateAll[E, Out]) Descriptor() Descriptor { return describe[E, Out](VerbCreateAll) }

func (CreateAll[E, Out]) Shape() typeinfo.Shape {
	return shape[CreateAll[E, Out], E, Out]("request.CreateAll")
}

// Get selects one entity
type Get[E any, Out any] struct{}

func (Get[E, Out]) Descriptor() Descriptor { return describe[E, Out](VerbGet) }

func (Get[E, Out]) Shape() typeinfo.Shape {
	return shape[Get[E, Out], E, Out]("request.Get")
}

// GetAll selects every matching entity
type GetAll[E any, Out any] struct{}

func (GetAll[E, Out]) Descriptor() Descriptor { return describe[E, Out](VerbGetAll) }

func (GetAll[E, Out]) Shape() typeinfo.Shape {
	return shape[GetAll[E, Out], E, Out]("request.GetAll")
}

// PagedGetAll selects one page of matching entities. The paging fields are
// promoted into the embedding request.
type PagedGetAll[E any, Out any] struct {
	PageNumber int `json:"page_number"`
	PageSize   int `json:"page_size"`
}

func (PagedGetAll[E, Out]) Descriptor() Descriptor { return describe[E, Out](VerbPagedGetAll) }

func (PagedGetAll[E, Out]) Shape() typeinfo.Shape {
	return shape[PagedGetAll[E, Out], E, Out]("request.PagedGetAll")
}

// Paging returns the requested page number and size
func (p PagedGetAll[E, Out]) Paging() (number, size int) {
	return p.PageNumber, p.PageSize
}

// Pager is implemented by paged requests
type Pager interface {
	Paging() (number, size int)
}

// Update selects one entity and updates it from the request
type Update[E any, Out any] struct{}

func (Update[E, Out]) Descriptor() Descriptor { return describe[E, Out](VerbUpdate) }

func (Update[E, Out]) Shape() typeinfo.Shape {
	return shape[Update[E, Out], E, Out]("request.Update")
}

// UpdateAll updates every selected entity
type UpdateAll[E any, Out any] struct{}

func (UpdateAll[E, Out]) Descriptor() Descriptor { return describe[E, Out](VerbUpdateAll) }

func (UpdateAll[E, Out]) Shape() typeinfo.Shape {
	return shape[UpdateAll[E, Out], E, Out]("request.UpdateAll")
}

// Delete selects one entity and deletes it
type Delete[E any, Out any] struct{}

func (Delete[E, Out]) Descriptor() Descriptor { return describe[E, Out](VerbDelete) }

func (Delete[E, Out]) Shape() typeinfo.Shape {
	return shape[Delete[E, Out], E, Out]("request.Delete")
}

// DeleteAll deletes every selected entity
type DeleteAll[E any, Out any] struct{}

func (DeleteAll[E, Out]) Descriptor() Descriptor { return describe[E, Out](VerbDeleteAll) }

func (DeleteAll[E, Out]) Shape() typeinfo.Shape {
	return shape[DeleteAll[E, Out], E, Out]("request.DeleteAll")
}

// Save updates the selected entity or creates one when none matches
type Save[E any, Out any] struct{}

func (Save[E, Out]) Descriptor() Descriptor { return describe[E, Out](VerbSave) }

func (Save[E, Out]) Shape() typeinfo.Shape {
	return shape[Save[E, Out], E, Out]("request.Save")
}

// Merge upserts every input item by its batch key
type Merge[E any, Out any] struct{}

func (Merge[E, Out]) Descriptor() Descriptor { return describe[E, Out](VerbMerge) }

func (Merge[E, Out]) Shape() typeinfo.Shape {
	return shape[Merge[E, Out], E, Out]("request.Merge")
}

// Synchronize upserts every input item and deletes the entities in scope
// that no item matched
type Synchronize[E any, Out any] struct{}

func (Synchronize[E, Out]) Descriptor() Descriptor { return describe[E, Out](VerbSynchronize) }

func (Synchronize[E, Out]) Shape() typeinfo.Shape {
	return shape[Synchronize[E, Out], E, Out]("request.Synchronize")
}

// NoValidation opts a request out of the validation collaborator
type NoValidation struct{}

func (NoValidation) skipValidation() {}

type validationOptOut interface {
	skipValidation()
}

// SkipsValidation reports whether req embeds NoValidation
func SkipsValidation(req any) bool {
	_, ok := req.(validationOptOut)
	return ok
}
