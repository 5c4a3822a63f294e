package errs

const (
	ErrCode_OK                = 0
	ErrCode_Unknown           = 1
	ErrCode_NotFound          = 2
	ErrCode_AllocationFailure = 3
	ErrCode_InvalidArgument   = 4
	ErrCode_Corrupt           = 5
	ErrCode_Closed            = 6
	ErrCode_Busy              = 7
	ErrCode_Duplicate         = 8
	ErrCode_Codec             = 9
)

var (
	Unknown           = CreateCodeError(ErrCode_Unknown, "UNKNOWN")
	NotFound          = CreateCodeError(ErrCode_NotFound, "NOT_FOUND")                   // id 不存在或已失效
	AllocationFailure = CreateCodeError(ErrCode_AllocationFailure, "ALLOCATION_FAILURE") // 对象池耗尽
	InvalidArgument   = CreateCodeError(ErrCode_InvalidArgument, "INVALID_ARGUMENT")
	Corrupt           = CreateCodeError(ErrCode_Corrupt, "CORRUPT_IMAGE") // 持久化镜像不自洽
	Closed            = CreateCodeError(ErrCode_Closed, "CLOSED")
	Busy              = CreateCodeError(ErrCode_Busy, "BUSY")
	Duplicate         = CreateCodeError(ErrCode_Duplicate, "DUPLICATE")
	Codec             = CreateCodeError(ErrCode_Codec, "CODEC")
)
