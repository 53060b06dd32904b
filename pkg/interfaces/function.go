package interfaces

// AppFunction is the transform function signature every pipeline stage
// implements. When continuePipeline is false and result is an
// error, the pipeline short-circuits with an error; when false and result
// is not an error, the pipeline ends cleanly. When true, result becomes the
// input to the next function; a nil result means "reuse the previous
// input".
type AppFunction func(ctx AppFunctionContext, data any) (continuePipeline bool, result any)

// FunctionFactory builds an AppFunction from a set of string parameters.
// Both built-in and user-registered functions share this factory
// signature, so configurable-pipeline loaders can construct either by
// name.
type FunctionFactory func(parameters map[string]string) (AppFunction, error)
