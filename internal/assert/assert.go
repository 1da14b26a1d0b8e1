package assert

import "reflect"

// NotNil panics when value is nil, including typed nil pointers stored in an interface.
func NotNil(value any, name string) {
	if value == nil {
		panic("expected value to be not nil: " + name)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		if rv.IsNil() {
			panic("expected value to be not nil: " + name)
		}
	}
}

func NotEmptyStr(str string, name string) {
	if str == "" {
		panic("expected string to be non-empty: " + name)
	}
}
