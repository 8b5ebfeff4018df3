package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")

	//一意制約違反（email重複など）
	ErrDuplicate = errors.New("duplicate")

	//条件付きUPDATEで0件（他のリクエストが先に状態を変えた）
	ErrStaleState = errors.New("stale state")
)
