package domain

// Failure is a record that could not be processed, with the reason.
type Failure struct {
	Record SourceRecord
	Cause  error
}

func (f *Failure) Error() string {
	return f.Record.String() + ": " + f.Cause.Error()
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Processed pairs a stage value with the record it was derived from.
type Processed[T any] struct {
	Record SourceRecord
	Value  T
}

// Outcome is either a successfully processed value or a Failure.
type Outcome[T any] struct {
	Processed[T]
	Failure *Failure
}

func Succeeded[T any](rec SourceRecord, value T) Outcome[T] {
	return Outcome[T]{Processed: Processed[T]{Record: rec, Value: value}}
}

func Failed[T any](rec SourceRecord, cause error) Outcome[T] {
	return Outcome[T]{
		Processed: Processed[T]{Record: rec},
		Failure:   &Failure{Record: rec, Cause: cause},
	}
}

func (o Outcome[T]) OK() bool {
	return o.Failure == nil
}
