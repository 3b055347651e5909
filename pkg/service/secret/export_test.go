package secret

var ResourceName = resourceName
