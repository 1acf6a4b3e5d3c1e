package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Fatal           bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrCodeUnsupportedFormat: {
		Code:            ErrCodeUnsupportedFormat,
		Fatal:           true,
		Description:     "Input or output file extension is not recognized",
		SuggestedAction: "Use a .csv or .xlsx input and a .csv or .json output",
	},
	ErrCodeUnknownCategory: {
		Code:            ErrCodeUnknownCategory,
		Fatal:           true,
		Description:     "Categorical value is neither an observed category nor the sentinel",
		SuggestedAction: "Check the column for stray values: groupprep encode <column>",
	},
	ErrCodeConfigLoad: {
		Code:            ErrCodeConfigLoad,
		Fatal:           false,
		Description:     "Persisted configuration or identity map is malformed",
		SuggestedAction: "Fix or delete the file; the identity map is rebuilt on the next run",
	},
	ErrCodeMissingColumn: {
		Code:            ErrCodeMissingColumn,
		Fatal:           true,
		Description:     "A configured column is not present in the input",
		SuggestedAction: "Check column_mapping and the column lists in the pipeline config",
	},
	ErrCodeValidation: {
		Code:            ErrCodeValidation,
		Fatal:           true,
		Description:     "Configuration failed validation",
		SuggestedAction: "Review the pipeline config: groupprep prepare --help",
	},
	ErrCodeCancelled: {
		Code:            ErrCodeCancelled,
		Fatal:           true,
		Description:     "Operation cancelled by user or system",
		SuggestedAction: "Re-run the command",
	},
	ErrCodeProcessing: {
		Code:            ErrCodeProcessing,
		Fatal:           true,
		Description:     "Unclassified processing error",
		SuggestedAction: "Re-run with --debug and inspect the logs",
	},
}

// IsFatal returns true if the given error code aborts a pipeline run.
func IsFatal(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Fatal
	}
	return true
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Re-run with --debug and inspect the logs"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
