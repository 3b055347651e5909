package errutil

var ErrorValues = errorValues
