package models

// ResourceStatus tags a Resource value.
type ResourceStatus int

const (
	ResourceLoading ResourceStatus = iota
	ResourceSuccess
	ResourceError
)

// Resource is the result shape repositories emit on their streams: a
// Loading marker followed by exactly one Success or Error. Callers switch
// on Status; Data is only meaningful for Success, Message for Error.
type Resource[T any] struct {
	Status  ResourceStatus
	Data    T
	Message string
}

func Loading[T any]() Resource[T] {
	return Resource[T]{Status: ResourceLoading}
}

func Success[T any](data T) Resource[T] {
	return Resource[T]{Status: ResourceSuccess, Data: data}
}

func Failure[T any](message string) Resource[T] {
	return Resource[T]{Status: ResourceError, Message: message}
}
