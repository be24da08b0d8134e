package httpgin

var RespondErr = respondErr
