package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name RemoteService --dir ../domain/lineup --output domain/lineup --outpkg lineupmock --filename remote_service_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name RemoteService --dir ../domain/optimization --output domain/optimization --outpkg optimizationmock --filename remote_service_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Repository --dir ../domain/optimization --output domain/optimization --outpkg optimizationmock --filename repository_mock.go
